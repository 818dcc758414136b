package config

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// FullReader abstracts config source storage, so tests need no files.
type FullReader interface {
	Normalize(name string) string
	// nil,nil = not found
	ReadAll(name string) ([]byte, error)
}

// OsFullReader resolves relative names against directory of the main config file.
type OsFullReader struct {
	base string
}

func NewOsFullReader() *OsFullReader { return &OsFullReader{} }

func (r *OsFullReader) SetBase(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	r.base = dir
}

func (r *OsFullReader) Normalize(name string) string {
	if !filepath.IsAbs(name) {
		name = filepath.Join(r.base, name)
	}
	return filepath.Clean(name)
}

func (*OsFullReader) ReadAll(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, errors.Trace(err)
	case b == nil:
		// empty file is not absent
		b = []byte{}
	}
	return b, nil
}

// MockFullReader maps source name to content.
type MockFullReader map[string]string

func NewMockFullReader(sources map[string]string) MockFullReader { return MockFullReader(sources) }

func (MockFullReader) Normalize(name string) string { return filepath.Clean(name) }

func (m MockFullReader) ReadAll(name string) ([]byte, error) {
	if s, ok := m[name]; ok {
		return []byte(s), nil
	}
	return nil, nil
}
