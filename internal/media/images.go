// Package media stores product photos uploaded from the admin panel.
package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// URLPrefix is the path under which stored images are served.
const URLPrefix = "/uploads/"

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

type ImageStore struct {
	dir string
}

func NewImageStore(dir string) *ImageStore {
	return &ImageStore{dir: dir}
}

func (s *ImageStore) Dir() string { return s.dir }

// Save copies an uploaded image and returns its public reference.
func (s *ImageStore) Save(file multipart.File, header *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	if !allowedExt[ext] {
		return "", fmt.Errorf("unsupported image type %s", ext)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	name := uuid.New().String() + ext
	out, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", err
	}
	return URLPrefix + name, nil
}

// Remove deletes a stored image by reference. Missing files are ignored.
func (s *ImageStore) Remove(ref string) error {
	if ref == "" || !strings.HasPrefix(ref, URLPrefix) {
		return nil
	}
	name := filepath.Base(ref)
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Usage reports the number of stored files and their total size in bytes.
func (s *ImageStore) Usage() (int, int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	var (
		count int
		size  int64
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		count++
		size += info.Size()
	}
	return count, size, nil
}
