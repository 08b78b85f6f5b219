// Package filestore implements storage.Store on a local directory.
package filestore

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps one file per key below a root directory. Keys containing "/"
// map to subdirectories. Writes go to a temporary file that is renamed over
// the target, so readers never see a partial document.
type Store struct {
	root string
	mu   sync.RWMutex
}

// New returns a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: directory is empty", errors.ErrMissingConfig),
			"filestore", "New", "validate directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapTransient(err, "filestore", "New", "create directory")
	}
	return &Store{root: dir}, nil
}

// Root returns the directory the store writes to.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) path(method, key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.WrapInvalid(
			fmt.Errorf("invalid key %q", key), "filestore", method, "resolve key")
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes data to the file for key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "filestore", "Put", "check context")
	}
	path, err := s.path("Put", key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapTransient(err, "filestore", "Put", "create directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.WrapTransient(err, "filestore", "Put", "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.WrapTransient(err, "filestore", "Put", "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.WrapTransient(err, "filestore", "Put", "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.WrapTransient(err, "filestore", "Put", "rename temp file")
	}
	return nil
}

// Get reads the file for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "filestore", "Get", "check context")
	}
	path, err := s.path("Get", key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key), "filestore", "Get", "read file")
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "filestore", "Get", "read file")
	}
	return data, nil
}

// List returns the keys below the root that start with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "filestore", "List", "check context")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []string{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "filestore", "List", "walk directory")
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the file for key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "filestore", "Delete", "check context")
	}
	path, err := s.path("Delete", key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.WrapTransient(err, "filestore", "Delete", "remove file")
	}
	return nil
}
