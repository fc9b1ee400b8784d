package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	jerrors "trade-journal/internal/errors"
)

// FileStore keeps objects in a local directory and addresses them with
// file:// URLs.
type FileStore struct {
	root string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &FileStore{root: abs}, nil
}

// Root returns the storage directory.
func (s *FileStore) Root() string {
	return s.root
}

// Put implements ObjectStore.
func (s *FileStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial object
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("storing object: %w", err)
	}

	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

// Open implements ObjectStore.
func (s *FileStore) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	path, err := s.urlPath(rawURL)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", jerrors.ErrObjectNotFound, rawURL)
	}
	if err != nil {
		return nil, fmt.Errorf("opening object: %w", err)
	}
	return f, nil
}

// Delete implements ObjectStore.
func (s *FileStore) Delete(ctx context.Context, rawURL string) error {
	path, err := s.urlPath(rawURL)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", jerrors.ErrObjectNotFound, rawURL)
	}
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

func (s *FileStore) keyPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	path := filepath.Join(s.root, filepath.FromSlash(key))
	return s.contain(path, key)
}

func (s *FileStore) urlPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("not a file object url: %q", rawURL)
	}
	return s.contain(filepath.Clean(filepath.FromSlash(u.Path)), rawURL)
}

// contain rejects paths that escape the storage directory.
func (s *FileStore) contain(path, ref string) (string, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object %q is outside the storage directory", ref)
	}
	return path, nil
}

// ctxReader stops a copy when the context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
