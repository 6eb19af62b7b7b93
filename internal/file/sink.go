package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/pgzip"
)

var ErrInvalidDestination = errors.New("invalid destination name")
var ErrSinkClosed = errors.New("sink already committed or discarded")

// ---------------------------------------------------- Store Files ----------------------------------------------------

// Destination decides where received files end up.
type Destination struct {
	Dir             string
	Compress        bool // store files gzip compressed with a .gz suffix
	PreserveModTime bool // apply the modification time announced by the server
}

// Path returns the final location of the requested file. Only the base name of
// the request is used, requests can never write outside of Dir.
func (d Destination) Path(name string) (string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	switch base {
	case ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrInvalidDestination, name)
	}
	if d.Compress {
		base += ".gz"
	}
	return filepath.Join(d.Dir, base), nil
}

// Exists reports whether receiving name would overwrite an existing file.
func (d Destination) Exists(name string) bool {
	path, err := d.Path(name)
	if err != nil {
		return false
	}
	return fileExists(path)
}

// Create opens a Sink next to the final location of name.
func (d Destination) Create(name string) (*Sink, error) {
	path, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), RECEIVE_TEMP_FILE_NAME_PREFIX)
	if err != nil {
		return nil, fmt.Errorf("creating temporary file: %w", err)
	}
	s := &Sink{
		path:            path,
		tmp:             tmp,
		bw:              bufio.NewWriter(tmp),
		preserveModTime: d.PreserveModTime,
	}
	s.w = s.bw
	if d.Compress {
		s.gw = pgzip.NewWriter(s.bw)
		s.w = s.gw
	}
	return s, nil
}

// Sink receives a payload into a temporary file. Nothing becomes visible
// at the final path until Commit.
type Sink struct {
	path            string
	preserveModTime bool

	tmp *os.File
	bw  *bufio.Writer
	gw  *pgzip.Writer
	w   io.Writer
}

func (s *Sink) Write(p []byte) (int, error) {
	if s.tmp == nil {
		return 0, ErrSinkClosed
	}
	return s.w.Write(p)
}

// Path is where the file will be stored once committed.
func (s *Sink) Path() string {
	return s.path
}

// Commit moves the received payload into place.
func (s *Sink) Commit(modTime uint32) error {
	if s.tmp == nil {
		return ErrSinkClosed
	}
	if err := s.finish(); err != nil {
		s.Discard()
		return err
	}
	tmpName := s.tmp.Name()
	s.tmp = nil
	if s.preserveModTime {
		mt := time.Unix(int64(modTime), 0)
		if err := os.Chtimes(tmpName, mt, mt); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("setting modification time: %w", err)
		}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("moving %s into place: %w", s.path, err)
	}
	return nil
}

// Discard removes the partial payload. Calling it after Commit is a no-op.
func (s *Sink) Discard() error {
	if s.tmp == nil {
		return nil
	}
	tmp := s.tmp
	s.tmp = nil
	tmp.Close()
	return os.Remove(tmp.Name())
}

func (s *Sink) finish() error {
	if s.gw != nil {
		if err := s.gw.Close(); err != nil {
			return fmt.Errorf("closing gzip stream: %w", err)
		}
	}
	if err := s.bw.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", s.tmp.Name(), err)
	}
	if err := s.tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", s.tmp.Name(), err)
	}
	return nil
}
