package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Well-known key prefixes under the store root.
const (
	UploadsPrefix    = "uploads"
	OutputsPrefix    = "outputs"
	GlossariesPrefix = "glossaries"
)

// FileStore persists uploads, translation outputs, and glossaries on the
// local filesystem, addressed by sanitized relative keys. It owns the
// bytes; tasks and history records only carry keys.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath and ensures the
// well-known subdirectories exist.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	for _, sub := range []string{"", UploadsPrefix, OutputsPrefix, GlossariesPrefix} {
		if err := os.MkdirAll(filepath.Join(basePath, sub), 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure base path: %w", err)
		}
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists the provided bytes at the given relative key and returns
// the canonicalized storage key. Keys are cleaned to prevent directory
// traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	return s.WriteFrom(ctx, key, strings.NewReader(string(data)))
}

// WriteFrom streams r into the file at key. Used by upload intake so
// large documents are not buffered in memory twice.
func (s *FileStore) WriteFrom(ctx context.Context, key string, r io.Reader) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	return cleanKey, nil
}

// Read returns the contents stored at key.
func (s *FileStore) Read(key string) ([]byte, error) {
	full, err := s.Resolve(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Resolve maps a key to its absolute path under the store root without
// touching the filesystem.
func (s *FileStore) Resolve(key string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), nil
}

// Stat reports the size of the file at key, or an error if it is absent.
func (s *FileStore) Stat(key string) (int64, error) {
	full, err := s.Resolve(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Exists reports whether a file is stored at key.
func (s *FileStore) Exists(key string) bool {
	size, err := s.Stat(key)
	return err == nil && size >= 0
}

// Remove deletes the file at key. Removing an absent key is not an error.
func (s *FileStore) Remove(key string) error {
	full, err := s.Resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// RemoveAll deletes the subtree under key (a task's whole output folder).
func (s *FileStore) RemoveAll(key string) error {
	full, err := s.Resolve(key)
	if err != nil {
		return err
	}
	return os.RemoveAll(full)
}

// List walks the subtree at prefix and returns keys of regular files
// matching ext ("" matches everything).
func (s *FileStore) List(prefix, ext string) ([]string, error) {
	root, err := s.Resolve(prefix)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(p), ext) {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", prefix, err)
	}
	return keys, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
