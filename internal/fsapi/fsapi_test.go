package fsapi

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/loykin/orchestrator/internal/orcherr"
)

func TestWriteAtomicAndRead(t *testing.T) {
	root := t.TempDir()
	a := New(root)

	if err := a.WriteAtomic("config/settings.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteAtomic() error = %v", err)
	}
	got, err := a.Read("config/settings.json")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("Read() = %q", got)
	}
	if _, err := os.Stat(filepath.Join(root, "config/settings.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file should not survive a successful WriteAtomic")
	}
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	a := New(root)

	ok, err := a.Exists("missing.txt")
	if err != nil || ok {
		t.Fatalf("Exists() = %v, %v, want false, nil", ok, err)
	}
	if err := a.WriteAtomic("present.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	ok, err = a.Exists("present.txt")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v, want true, nil", ok, err)
	}
}

func TestMkdirAndReaddir(t *testing.T) {
	root := t.TempDir()
	a := New(root)

	if err := a.Mkdir("data/models"); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	if err := a.WriteAtomic("data/a.txt", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteAtomic("data/b.txt", []byte("b")); err != nil {
		t.Fatal(err)
	}
	names, err := a.Readdir("data")
	if err != nil {
		t.Fatalf("Readdir() error = %v", err)
	}
	sort.Strings(names)
	want := []string{"a.txt", "b.txt", "models"}
	if len(names) != len(want) {
		t.Fatalf("Readdir() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Readdir() = %v, want %v", names, want)
		}
	}
}

func TestRemoveAndRmdir(t *testing.T) {
	root := t.TempDir()
	a := New(root)

	if err := a.Mkdir("empty-dir"); err != nil {
		t.Fatal(err)
	}
	if err := a.Rmdir("empty-dir"); err != nil {
		t.Fatalf("Rmdir() error = %v", err)
	}
	if ok, _ := a.Exists("empty-dir"); ok {
		t.Fatal("Rmdir() should remove the directory")
	}

	if err := a.WriteAtomic("file.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := a.Remove("file.txt"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if ok, _ := a.Exists("file.txt"); ok {
		t.Fatal("Remove() should remove the file")
	}
}

func TestCopyAndMove(t *testing.T) {
	root := t.TempDir()
	a := New(root)

	if err := a.WriteAtomic("src.txt", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := a.Copy("src.txt", "copy.txt"); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	got, err := a.Read("copy.txt")
	if err != nil || string(got) != "payload" {
		t.Fatalf("Read(copy.txt) = %q, %v", got, err)
	}

	if err := a.Move("copy.txt", "moved/dest.txt"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if ok, _ := a.Exists("copy.txt"); ok {
		t.Fatal("Move() should remove the source")
	}
	got, err = a.Read("moved/dest.txt")
	if err != nil || string(got) != "payload" {
		t.Fatalf("Read(moved/dest.txt) = %q, %v", got, err)
	}
}

func TestLink(t *testing.T) {
	root := t.TempDir()
	shared := t.TempDir()
	target := filepath.Join(shared, "sdxl.safetensors")
	if err := os.WriteFile(target, []byte("weights"), 0o640); err != nil {
		t.Fatal(err)
	}

	a := New(root)
	if err := a.Link("models/sdxl.safetensors", target); err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	got, err := a.Read("models/sdxl.safetensors")
	if err != nil || string(got) != "weights" {
		t.Fatalf("Read(link) = %q, %v", got, err)
	}
}

func TestUnderRejectsPathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	a := New(root)

	_, err := a.Exists("/etc/passwd")
	if !orcherr.Is(err, orcherr.KindPathEscape) {
		t.Fatalf("Exists() error = %v, want KindPathEscape", err)
	}
}
