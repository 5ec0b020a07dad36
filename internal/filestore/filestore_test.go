package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "pdfs"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	content := []byte("%PDF-1.4 statement body")

	name, existing, err := s.Save("ride history.pdf", strings.NewReader(string(content)))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if existing {
		t.Error("first save reported as existing")
	}

	sum := sha256.Sum256(content)
	want := hex.EncodeToString(sum[:])[:12] + "-ride history.pdf"
	if name != want {
		t.Errorf("stored name = %q, want %q", name, want)
	}

	f, err := s.Get(name)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("got %q, want %q", got, content)
	}
}

func TestSaveDeduplicatesByContent(t *testing.T) {
	s := newTestStore(t)
	content := "%PDF-1.4 same bytes"

	first, existing, err := s.Save("january.pdf", strings.NewReader(content))
	if err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if existing {
		t.Error("first save reported as existing")
	}

	// Same content under a different original name still matches.
	second, existing, err := s.Save("copy-of-january.pdf", strings.NewReader(content))
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if !existing {
		t.Error("duplicate content not detected")
	}
	if second != first {
		t.Errorf("duplicate resolved to %q, want %q", second, first)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 {
		t.Errorf("archive holds %d files, want 1: %v", len(names), names)
	}
}

func TestSaveDistinctContent(t *testing.T) {
	s := newTestStore(t)

	if _, _, err := s.Save("statement.pdf", strings.NewReader("january")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, _, err := s.Save("statement.pdf", strings.NewReader("february")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("archive holds %d files, want 2: %v", len(names), names)
	}
}

func TestSaveStripsDirectories(t *testing.T) {
	s := newTestStore(t)

	name, _, err := s.Save("/tmp/incoming/statement.pdf", strings.NewReader("body"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(name, "-statement.pdf") {
		t.Errorf("stored name = %q, want a bare file name", name)
	}
	if strings.Contains(name, string(os.PathSeparator)) {
		t.Errorf("stored name %q contains a path separator", name)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	name, _, err := s.Save("statement.pdf", strings.NewReader("body"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(name); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(name); err == nil {
		t.Error("Get succeeded after Delete")
	}

	if err := s.Delete("never-stored.pdf"); err != nil {
		t.Errorf("Delete of missing file: %v", err)
	}
	if err := s.Delete(""); err != nil {
		t.Errorf("Delete of empty name: %v", err)
	}
}

func TestListSkipsTempFiles(t *testing.T) {
	s := newTestStore(t)

	if _, _, err := s.Save("statement.pdf", strings.NewReader("body")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(s.FullPath(".incoming-leftover"), []byte("partial"), 0644); err != nil {
		t.Fatalf("plant temp file: %v", err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 {
		t.Errorf("List = %v, want the one archived statement", names)
	}
}
