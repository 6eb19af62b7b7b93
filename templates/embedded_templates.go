package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
)

const (
	templatesDir      = "tmpl"
	templateExtension = ".html"
)

// Landing is the page the gateway serves at its root.
const Landing = "gateway/landing.html"

//go:embed tmpl
var embeddedFiles embed.FS

// Parse template entries from templatesDir, mapped to filenames without the prefixed templatesDir.
// i.e. templates/tmpl/gateway/landing.html ---> map["gateway/landing.html" -> *template.Template].
func NewTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)
	err := fs.WalkDir(embeddedFiles, templatesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, templateExtension) {
			return nil
		}
		tmpl, err := template.ParseFS(embeddedFiles, path)
		if err != nil {
			return err
		}
		templates[strings.TrimPrefix(path, templatesDir+"/")] = tmpl
		return nil
	})
	if err != nil {
		return templates, fmt.Errorf("parsing template files: %w", err)
	}
	return templates, nil
}
