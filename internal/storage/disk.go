// Package storage persists uploaded chat attachments as objects addressed
// by bucket-relative paths.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore stores opaque blobs under slash-separated object paths and
// serves them back through public URLs.
type ObjectStore interface {
	// Put writes data at path, creating parent directories as needed.
	Put(path string, data []byte) error
	// Remove deletes the object. Removing a missing object is not an error.
	Remove(path string) error
	// PublicURL returns the URL under which the object is served.
	PublicURL(path string) string
}

// DiskStore is an ObjectStore backed by a local directory tree. Objects are
// served by the HTTP layer from the same directory under /media.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates a disk-backed object store rooted at dir.
func NewDiskStore(dir, baseURL string) *DiskStore {
	return &DiskStore{
		root:    dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// resolve maps an object path onto the filesystem, rejecting anything that
// would escape the storage root.
func (s *DiskStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	if clean == "/" || strings.Contains(path, "..") {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *DiskStore) Put(path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

func (s *DiskStore) Remove(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (s *DiskStore) PublicURL(path string) string {
	return s.baseURL + "/media/" + strings.TrimPrefix(path, "/")
}

// Root returns the directory the store writes under, for static file serving.
func (s *DiskStore) Root() string {
	return s.root
}
