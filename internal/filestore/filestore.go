// Package filestore archives statement PDFs on local disk, named by
// content so the same bytes are never stored twice no matter how many
// times a statement is uploaded or re-downloaded.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Store is a flat directory of archived statements.
type Store struct {
	dir string

	// One save at a time keeps the dedup check and the rename atomic
	// with respect to each other.
	mu sync.Mutex
}

// New opens the archive at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save streams r into the archive. The stored name is the first 12 hex
// characters of the content's SHA-256 followed by the original base
// name, so identical bytes land on the same name prefix regardless of
// what the file was called. When the content is already archived, Save
// reports the existing name instead of writing a second copy.
func (s *Store) Save(filename string, r io.Reader) (name string, existing bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".incoming-*")
	if err != nil {
		return "", false, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	if _, err := io.Copy(tmp, io.TeeReader(r, hasher)); err != nil {
		tmp.Close()
		return "", false, fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", false, fmt.Errorf("write file: %w", err)
	}

	prefix := hex.EncodeToString(hasher.Sum(nil))[:12]
	matches, err := filepath.Glob(filepath.Join(s.dir, prefix+"-*"))
	if err != nil {
		return "", false, fmt.Errorf("scan archive: %w", err)
	}
	if len(matches) > 0 {
		return filepath.Base(matches[0]), true, nil
	}

	name = prefix + "-" + filepath.Base(filename)
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", false, fmt.Errorf("archive file: %w", err)
	}
	return name, false, nil
}

// Get opens an archived statement by its stored name.
func (s *Store) Get(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes an archived statement. Deleting a name that is not
// there is not an error.
func (s *Store) Delete(name string) error {
	if name == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// FullPath returns the filesystem path for a stored name, for callers
// that hand paths to the extraction layer.
func (s *Store) FullPath(name string) string {
	return filepath.Join(s.dir, name)
}

// List returns the stored names in the archive, temp files excluded.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read archive directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
