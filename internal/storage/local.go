package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage implements ArtifactStore on a plain directory tree. It is
// the default backend; keys become relative paths under the root.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a local artifact store rooted at dir, creating
// the directory if needed.
// Parameters:
//   - root: directory that holds all artifacts.
// Returns:
//   - *LocalStorage: initialized store.
//   - error: non-nil if the root cannot be created.
func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

// resolve maps a key to its absolute path inside the root.
func (l *LocalStorage) resolve(key string) (string, error) {
	cleaned, err := ValidateKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

// Promote moves a finished local file into the store under key. The file
// is copied with a streaming SHA-256, then the source is removed.
func (l *LocalStorage) Promote(ctx context.Context, key, localPath string) (*ArtifactStat, error) {
	dst, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact file: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hasher), src)
	closeErr := out.Close()
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("failed to copy artifact: %w", err)
	}
	if closeErr != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("failed to finalize artifact: %w", closeErr)
	}

	src.Close()
	if err := os.Remove(localPath); err != nil {
		return nil, fmt.Errorf("failed to remove source file: %w", err)
	}

	return &ArtifactStat{
		Size:   size,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Download streams a stored artifact
func (l *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", key, err)
	}
	return file, nil
}

// Stat returns the stored size of an artifact
func (l *LocalStorage) Stat(ctx context.Context, key string) (int64, error) {
	path, err := l.resolve(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat artifact %s: %w", key, err)
	}
	return info.Size(), nil
}

// Exists checks if an artifact exists
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check artifact existence: %w", err)
	}
	return true, nil
}

// Delete deletes a single artifact. Deleting a missing artifact is not an
// error, so cleanup can re-run safely.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact %s: %w", key, err)
	}
	return nil
}

// DeletePrefix deletes every artifact under a key prefix
func (l *LocalStorage) DeletePrefix(ctx context.Context, prefix string) error {
	path, err := l.resolve(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete artifacts under %s: %w", prefix, err)
	}
	return nil
}
