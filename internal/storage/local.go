package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore writes blobs below a directory. All access goes through os.Root so keys cannot escape it.
type LocalStore struct {
	root         *os.Root
	publicPrefix string
}

var _ BlobStore = (*LocalStore)(nil)

func NewLocalStore(basePath, publicPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", basePath, err)
	}

	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", basePath, err)
	}

	return &LocalStore{root: root, publicPrefix: publicPrefix}, nil
}

// Put writes to a temp file next to the target and renames it into place, so readers never see a partial blob.
func (l *LocalStore) Put(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := filepath.FromSlash(key)
	if dir := filepath.Dir(name); dir != "." {
		if err := l.root.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating directory for %s: %w", key, err)
		}
	}

	tmp := name + "." + uuid.NewString() + ".tmp"
	if err := l.root.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", key, err)
	}
	if err := l.root.Rename(tmp, name); err != nil {
		_ = l.root.Remove(tmp)
		return "", fmt.Errorf("renaming %s: %w", key, err)
	}

	return publicURL(l.publicPrefix, key), nil
}

// Get serves local files; content type comes from the key extension and every blob is treated as immutable.
func (l *LocalStore) Get(ctx context.Context, key string) (*Blob, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	data, err := l.root.ReadFile(filepath.FromSlash(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Blob{Data: data, ContentType: contentType, CacheControl: CacheControlImmutable}, nil
}

// Delete is idempotent.
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	err := l.root.Remove(filepath.FromSlash(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *LocalStore) Close() error {
	return l.root.Close()
}
