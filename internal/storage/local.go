package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// LocalStorage keeps blobs on a filesystem rooted at the uploads directory.
type LocalStorage struct {
	fs      afero.Fs
	baseURL string
}

// NewLocalStorage serves blobs from fsys, which must already be rooted at
// the uploads directory. URLs are baseURL + "/uploads/" + path.
func NewLocalStorage(fsys afero.Fs, baseURL string) *LocalStorage {
	return &LocalStorage{
		fs:      fsys,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// NewDiskStorage creates the uploads directory and roots a LocalStorage there.
func NewDiskStorage(dir, baseURL string) (*LocalStorage, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return NewLocalStorage(afero.NewBasePathFs(afero.NewOsFs(), dir), baseURL), nil
}

// Fs exposes the rooted filesystem.
func (s *LocalStorage) Fs() afero.Fs {
	return s.fs
}

func (s *LocalStorage) Save(ctx context.Context, p string, r io.Reader) error {
	p, err := CleanPath(p)
	if err != nil {
		return err
	}

	err = s.fs.MkdirAll(path.Dir(p), 0755)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(f, contextReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(p)
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func (s *LocalStorage) Open(_ context.Context, p string) (io.ReadCloser, error) {
	p, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(p)
	if err != nil {
		return nil, notFound(err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := s.fs.Open(p)
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

func (s *LocalStorage) Move(_ context.Context, from, to string) error {
	from, err := CleanPath(from)
	if err != nil {
		return err
	}
	to, err = CleanPath(to)
	if err != nil {
		return err
	}

	err = s.fs.MkdirAll(path.Dir(to), 0755)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	err = s.fs.Rename(from, to)
	if err != nil {
		return fmt.Errorf("failed to move %s: %w", from, notFound(err))
	}
	return nil
}

func (s *LocalStorage) Delete(_ context.Context, p string) error {
	p, err := CleanPath(p)
	if err != nil {
		return err
	}

	err = s.fs.Remove(p)
	if err != nil {
		return notFound(err)
	}
	return nil
}

func (s *LocalStorage) URL(_ context.Context, p string) (string, error) {
	p, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/uploads/" + p, nil
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
