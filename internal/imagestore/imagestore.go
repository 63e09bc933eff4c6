// Package imagestore keeps the raw photo bytes, one JPEG file per photo id.
package imagestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// Store loads and saves photo bytes by photo id.
type Store interface {
	Load(ctx context.Context, photoID uint) ([]byte, error)
	Save(ctx context.Context, photoID uint, data []byte) error
	DeleteAll(ctx context.Context) error
}

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
	fileExtension   = ".jpg"
	tempPattern     = ".upload-*.tmp"
)

// FileStore stores photos as <root>/<id>.jpg.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed and returns a store rooted there.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.ValidationError("imagestore: root directory must not be empty")
	}
	if err := os.MkdirAll(root, dirPermissions); err != nil {
		return nil, errors.New(fmt.Errorf("imagestore: create root: %w", err)).
			Component("imagestore").
			Category(errors.CategoryFileIO).
			Context("root", root).
			Build()
	}
	return &FileStore{root: root}, nil
}

// Root returns the directory photos are kept in.
func (s *FileStore) Root() string { return s.root }

// Path returns the file path of a photo.
func (s *FileStore) Path(photoID uint) string {
	return filepath.Join(s.root, strconv.FormatUint(uint64(photoID), 10)+fileExtension)
}

// Load reads the bytes of a photo. A missing file is a not-found error.
func (s *FileStore) Load(ctx context.Context, photoID uint) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(photoID)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, errors.Newf("imagestore: photo %d has no image", photoID).
			Component("imagestore").
			Category(errors.CategoryNotFound).
			Priority(errors.PriorityLow).
			Context("path", path).
			Build()
	case err != nil:
		return nil, errors.New(fmt.Errorf("imagestore: read photo %d: %w", photoID, err)).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("path", path).
			Build()
	}
	return data, nil
}

// Save writes the bytes of a photo atomically, replacing any previous image.
func (s *FileStore) Save(ctx context.Context, photoID uint, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(photoID)
	if err := writeFileAtomic(s.root, path, data); err != nil {
		return errors.New(fmt.Errorf("imagestore: save photo %d: %w", photoID, err)).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			FileContext(path, int64(len(data))).
			Build()
	}

	GetLogger().Debug("photo image saved",
		logger.Uint("photo_id", photoID),
		logger.Int("bytes", len(data)))
	return nil
}

// DeleteAll removes every photo file and leftover temp file. Other files in
// the root are left alone.
func (s *FileStore) DeleteAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.New(fmt.Errorf("imagestore: list root: %w", err)).
			Component("imagestore").
			Category(errors.CategoryImageStore).
			Context("root", s.root).
			Build()
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !isManagedFile(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.New(fmt.Errorf("imagestore: remove %s: %w", entry.Name(), err)).
				Component("imagestore").
				Category(errors.CategoryImageStore).
				Build()
		}
		removed++
	}

	GetLogger().Info("photo images deleted", logger.Int("count", removed))
	return nil
}

func isManagedFile(name string) bool {
	if strings.HasPrefix(name, ".upload-") && strings.HasSuffix(name, ".tmp") {
		return true
	}
	id, ok := strings.CutSuffix(name, fileExtension)
	if !ok {
		return false
	}
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// GetLogger returns the imagestore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("imagestore")
}
