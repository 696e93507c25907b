package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/kanha321/mnnit-dark-web-reborn/internal/storage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func setupBackend(t *testing.T) (*LocalBackend, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "readme.md"), "# hello")
	writeFile(t, filepath.Join(root, "docs", "guide.md"), "guide")
	writeFile(t, filepath.Join(root, "docs", "api", "ref.md"), "ref")
	writeFile(t, filepath.Join(root, ".secret"), "hidden")
	writeFile(t, filepath.Join(root, "Zeta.txt"), "z")

	b, err := New(Config{RootPath: root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, root
}

func TestNewCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	if _, err := New(Config{RootPath: root}); err == nil {
		t.Fatal("expected error for missing root without CreateDirs")
	}
	if _, err := New(Config{RootPath: root, CreateDirs: true}); err != nil {
		t.Fatalf("New with CreateDirs: %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestNewRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	writeFile(t, f, "x")
	if _, err := New(Config{RootPath: f}); err == nil {
		t.Fatal("expected error for file root")
	}
}

func TestList(t *testing.T) {
	b, _ := setupBackend(t)

	entries, err := b.List(context.Background(), "/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []string{"/docs", "/readme.md", "/Zeta.txt"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, p := range want {
		if entries[i].Path != p {
			t.Errorf("entries[%d].Path = %s, want %s", i, entries[i].Path, p)
		}
	}
	if !entries[0].IsDir {
		t.Error("docs should be a directory")
	}
	if entries[1].Size != int64(len("# hello")) {
		t.Errorf("readme size = %d", entries[1].Size)
	}
}

func TestListNested(t *testing.T) {
	b, _ := setupBackend(t)
	entries, err := b.List(context.Background(), "/docs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Path != "/docs/api" || entries[1].Path != "/docs/guide.md" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestListErrors(t *testing.T) {
	b, _ := setupBackend(t)
	ctx := context.Background()

	tests := []struct {
		path string
		want error
	}{
		{"/missing", storage.ErrNotFound},
		{"/readme.md", storage.ErrNotDirectory},
		{"/../etc", storage.ErrOutsideRoot},
		{"/docs/../../etc", storage.ErrOutsideRoot},
		{"/.secret", storage.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := b.List(ctx, tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("List(%s) error = %v, want %v", tt.path, err, tt.want)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	b, _ := setupBackend(t)

	rc, e, err := b.Open(context.Background(), "/docs/guide.md")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "guide" {
		t.Errorf("content = %q", data)
	}
	if e.Name != "guide.md" || e.Path != "/docs/guide.md" || e.Size != 5 {
		t.Errorf("entry = %+v", e)
	}

	if _, _, err := b.Open(context.Background(), "/docs"); !errors.Is(err, storage.ErrIsDirectory) {
		t.Errorf("Open dir error = %v, want ErrIsDirectory", err)
	}
}

func TestStat(t *testing.T) {
	b, _ := setupBackend(t)

	e, err := b.Stat(context.Background(), "/docs/api")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !e.IsDir || e.Name != "api" {
		t.Errorf("entry = %+v", e)
	}

	root, err := b.Stat(context.Background(), "")
	if err != nil {
		t.Fatalf("Stat root: %v", err)
	}
	if root.Path != "/" || !root.IsDir {
		t.Errorf("root entry = %+v", root)
	}
}

func TestSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	b, root := setupBackend(t)

	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "passwd"), "nope")
	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "docs"), filepath.Join(root, "alias")); err != nil {
		t.Fatal(err)
	}

	if _, _, err := b.Open(context.Background(), "/escape/passwd"); !errors.Is(err, storage.ErrOutsideRoot) {
		t.Errorf("Open through link error = %v, want ErrOutsideRoot", err)
	}

	entries, err := b.List(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	var sawAlias bool
	for _, e := range entries {
		if e.Name == "escape" {
			t.Error("link leading outside root should not be listed")
		}
		if e.Name == "alias" {
			sawAlias = true
			if !e.IsDir {
				t.Error("alias should list as a directory")
			}
		}
	}
	if !sawAlias {
		t.Error("link inside root should be listed")
	}
}
