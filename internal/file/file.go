package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const RECEIVE_TEMP_FILE_NAME_PREFIX = ".xfer-get-"

var ErrNotFound = errors.New("file not found")

// ---------------------------------------------------- Serve Files ----------------------------------------------------

// Info is the metadata sent ahead of and after a payload.
type Info struct {
	Name    string
	Size    uint32
	ModTime uint32 // seconds since the epoch
}

// FS resolves requested names against a file system. It is safe for concurrent use.
type FS struct {
	fsys fs.FS
}

func NewFS(fsys fs.FS) *FS {
	return &FS{fsys: fsys}
}

// Dir serves the files below root.
func Dir(root string) *FS {
	return NewFS(os.DirFS(root))
}

// Stat resolves the metadata of a regular file. Names escaping the root,
// directories and files that do not fit the 32 bit size field all result in ErrNotFound.
func (f *FS) Stat(name string) (Info, error) {
	if !fs.ValidPath(name) {
		return Info{}, fmt.Errorf("%w: invalid path %q", ErrNotFound, name)
	}
	fi, err := fs.Stat(f.fsys, name)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	switch {
	case !fi.Mode().IsRegular():
		return Info{}, fmt.Errorf("%w: %q is not a regular file", ErrNotFound, name)
	case fi.Size() > math.MaxUint32:
		return Info{}, fmt.Errorf("%w: %q is larger than %d bytes", ErrNotFound, name, uint32(math.MaxUint32))
	}
	return Info{Name: name, Size: uint32(fi.Size()), ModTime: Timestamp(fi.ModTime())}, nil
}

// Open opens a file previously resolved by Stat.
func (f *FS) Open(name string) (io.ReadCloser, error) {
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: invalid path %q", ErrNotFound, name)
	}
	r, err := f.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return r, nil
}

// Timestamp clamps t into the 32 bit seconds field of the protocol.
func Timestamp(t time.Time) uint32 {
	switch s := t.Unix(); {
	case s < 0:
		return 0
	case s > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(s)
	}
}

// ----------------------------------------------------- Utilities -----------------------------------------------------

// optimistically remove files created by xfer with the specified prefix
func RemoveTemporaryFiles(dir, prefix string) {
	tempFiles, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, tempFile := range tempFiles {
		if tempFile.IsDir() {
			continue
		}
		if strings.HasPrefix(tempFile.Name(), prefix) {
			os.Remove(filepath.Join(dir, tempFile.Name()))
		}
	}
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}
