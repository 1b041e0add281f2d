package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStore keeps blobs under a root directory of an afero filesystem. References are the cleaned keys.
type LocalStore struct {
	fs   afero.Fs
	root string
}

// NewLocalStore returns a store rooted at dir on the OS filesystem.
func NewLocalStore(dir string) *LocalStore {
	return NewLocalStoreFs(afero.NewOsFs(), dir)
}

// NewLocalStoreFs returns a store rooted at dir on fsys (e.g. afero.NewMemMapFs in tests).
func NewLocalStoreFs(fsys afero.Fs, dir string) *LocalStore {
	return &LocalStore{fs: fsys, root: dir}
}

// Put writes r to root/key. A partially written file is removed on failure.
func (s *LocalStore) Put(ctx context.Context, key, _ string, r io.Reader) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := s.path(key)
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("blob: mkdir: %w", err)
	}
	f, err := s.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("blob: create: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(p)
		return "", fmt.Errorf("blob: write: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(p)
		return "", fmt.Errorf("blob: close: %w", err)
	}
	return key, nil
}

// Delete removes the blob. Missing blobs are not an error.
func (s *LocalStore) Delete(_ context.Context, ref string) error {
	key, err := CleanKey(ref)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blob: delete: %w", err)
	}
	return nil
}

// Open returns the blob content for ref.
func (s *LocalStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	key, err := CleanKey(ref)
	if err != nil {
		return nil, err
	}
	return s.fs.Open(s.path(key))
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}
