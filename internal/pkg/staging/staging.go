// Package staging holds admitted originals and rendered thumbnails on local
// disk for the lifetime of a batch. Handles must be released on every removal
// path; a leaked handle is a leaked file in the staging directory.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// Store manages files inside a single staging directory.
type Store struct {
	dir string
}

// Handle references one staged file. Release removes the file exactly once;
// further calls are no-ops.
type Handle struct {
	path     string
	size     int64
	released atomic.Bool
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating staging directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the staging directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Put stages data under a generated name that keeps the original extension.
func (s *Store) Put(name string, data []byte) (*Handle, error) {
	path := s.newPath(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("error staging %s: %w", name, err)
	}
	return &Handle{path: path, size: int64(len(data))}, nil
}

// PutStream stages the contents of r.
func (s *Store) PutStream(name string, r io.Reader) (*Handle, error) {
	path := s.newPath(name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error staging %s: %w", name, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("error staging %s: %w", name, err)
	}
	return &Handle{path: path, size: n}, nil
}

func (s *Store) newPath(name string) string {
	return filepath.Join(s.dir, uuid.New().String()+filepath.Ext(name))
}

func (h *Handle) Path() string {
	return h.path
}

func (h *Handle) Size() int64 {
	return h.size
}

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// Release deletes the staged file. Only the first call takes effect.
func (h *Handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error releasing staged file %s: %w", h.path, err)
	}
	return nil
}
