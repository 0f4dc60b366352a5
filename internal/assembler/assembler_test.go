package assembler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/colten/sfpack/internal/pyenv"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStage(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "app.py"), "# app")
	writeFile(t, filepath.Join(src, "lib", "util.py"), "# util")
	writeFile(t, filepath.Join(src, "__pycache__", "app.cpython-311.pyc"), "junk")
	writeFile(t, filepath.Join(src, "stale.pyc"), "junk")

	depRoot := t.TempDir()
	writeFile(t, filepath.Join(depRoot, "requests", "__init__.py"), "# requests")
	writeFile(t, filepath.Join(depRoot, "six.py"), "# six")
	closure := []pyenv.Entry{
		{Name: "requests", Path: filepath.Join(depRoot, "requests")},
		{Name: "six.py", Path: filepath.Join(depRoot, "six.py")},
	}

	asm, err := New(DefaultExcludes)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	dest := t.TempDir()
	if err := asm.Stage(src, closure, dest); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	for _, want := range []string{
		"app.py",
		"lib/util.py",
		"requests/__init__.py",
		"six.py",
	} {
		if _, err := os.Stat(filepath.Join(dest, filepath.FromSlash(want))); err != nil {
			t.Errorf("expected staged file %s: %v", want, err)
		}
	}

	for _, excluded := range []string{"__pycache__", "stale.pyc"} {
		if _, err := os.Stat(filepath.Join(dest, excluded)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be excluded from staging", excluded)
		}
	}
}

func TestStageCustomExcludes(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "app.py"), "# app")
	writeFile(t, filepath.Join(src, "tests", "test_app.py"), "# test")

	asm, err := New([]string{"tests"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	dest := t.TempDir()
	if err := asm.Stage(src, nil, dest); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "tests")); !os.IsNotExist(err) {
		t.Error("expected tests directory to be excluded")
	}
	if _, err := os.Stat(filepath.Join(dest, "app.py")); err != nil {
		t.Errorf("expected app.py to be staged: %v", err)
	}
}

func TestStageAlwaysExcludesVenv(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "app.py"), "# app")
	writeFile(t, filepath.Join(src, ".venv", "lib", "python3.11", "site-packages", "pip", "__init__.py"), "# pip")

	// Custom patterns that do not mention .venv at all.
	asm, err := New([]string{"tests"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	dest := t.TempDir()
	if err := asm.Stage(src, nil, dest); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, ".venv")); !os.IsNotExist(err) {
		t.Error("expected the in-project virtualenv to be excluded")
	}
	if _, err := os.Stat(filepath.Join(dest, "app.py")); err != nil {
		t.Errorf("expected app.py to be staged: %v", err)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	if _, err := New([]string{"[unclosed"}); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestArchive(t *testing.T) {
	ws := t.TempDir()
	staged := filepath.Join(ws, "fn")
	writeFile(t, filepath.Join(staged, "app.py"), "# app")
	writeFile(t, filepath.Join(staged, "lib", "util.py"), "# util")

	artifacts := filepath.Join(ws, "artifacts")
	if err := os.MkdirAll(artifacts, 0o755); err != nil {
		t.Fatal(err)
	}

	asm, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	name, err := asm.Archive(staged, artifacts)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if filepath.Ext(name) != ".zip" {
		t.Errorf("expected .zip archive name, got %s", name)
	}

	zr, err := zip.OpenReader(filepath.Join(artifacts, name))
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer zr.Close()

	got := make(map[string]bool)
	for _, f := range zr.File {
		got[f.Name] = true
	}
	for _, want := range []string{"app.py", "lib/", "lib/util.py"} {
		if !got[want] {
			t.Errorf("archive missing entry %s (have %v)", want, got)
		}
	}
}

func TestArchiveNamesAreUnique(t *testing.T) {
	ws := t.TempDir()
	staged := filepath.Join(ws, "fn")
	writeFile(t, filepath.Join(staged, "app.py"), "# app")

	artifacts := filepath.Join(ws, "artifacts")
	if err := os.MkdirAll(artifacts, 0o755); err != nil {
		t.Fatal(err)
	}

	asm, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, err := asm.Archive(staged, artifacts)
	if err != nil {
		t.Fatalf("first Archive failed: %v", err)
	}
	second, err := asm.Archive(staged, artifacts)
	if err != nil {
		t.Fatalf("second Archive failed: %v", err)
	}

	if first == second {
		t.Errorf("identical content produced identical names: %s", first)
	}
}
