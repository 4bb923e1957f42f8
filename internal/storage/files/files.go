package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Store keeps uploaded documents and hands them back as local files for OCR.
type Store interface {
	Save(ctx context.Context, userID int64, filename string, r io.Reader, size int64, contentType string) (string, error)
	// Materialize returns a local path for location; release must always be called.
	Materialize(ctx context.Context, location string) (path string, release func(), err error)
	Remove(ctx context.Context, location string) error
}

// objectName builds a collision-free name that keeps the original extension.
func objectName(userID int64, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	return filepath.ToSlash(filepath.Join(strconv.FormatInt(userID, 10), uuid.NewString()+ext))
}

// LocalStore writes uploads below a base directory.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base dir required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) Save(_ context.Context, userID int64, filename string, r io.Reader, _ int64, _ string) (string, error) {
	dest := filepath.Join(s.baseDir, filepath.FromSlash(objectName(userID, filename)))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("close file: %w", err)
	}
	return dest, nil
}

func (s *LocalStore) Materialize(_ context.Context, location string) (string, func(), error) {
	if _, err := os.Stat(location); err != nil {
		return "", func() {}, fmt.Errorf("stat stored file: %w", err)
	}
	return location, func() {}, nil
}

func (s *LocalStore) Remove(_ context.Context, location string) error {
	if location == "" {
		return nil
	}
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stored file: %w", err)
	}
	// prune empty per-user directories
	_ = os.Remove(filepath.Dir(location))
	return nil
}
