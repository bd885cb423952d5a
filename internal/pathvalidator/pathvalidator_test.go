package pathvalidator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

func mustValidator(t *testing.T, root string) *Validator {
	t.Helper()
	v, err := New(root)
	if err != nil {
		t.Fatalf("New(%q) error = %v", root, err)
	}
	return v
}

func TestResolveWithinRoot(t *testing.T) {
	root := t.TempDir()
	v := mustValidator(t, root)

	got, err := v.Resolve("sub/file.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := filepath.Join(root, "sub", "file.txt")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	v := mustValidator(t, root)

	_, err := v.Resolve("../escape")
	if !sxnerr.Is(err, sxnerr.KindSecurity) {
		t.Fatalf("Resolve(traversal) error = %v, want KindSecurity", err)
	}
}

func TestResolveRejectsAbsoluteOutsideRoot(t *testing.T) {
	root := t.TempDir()
	v := mustValidator(t, root)

	_, err := v.Resolve("/etc/passwd")
	if !sxnerr.Is(err, sxnerr.KindSecurity) {
		t.Fatalf("Resolve(/etc/passwd) error = %v, want KindSecurity", err)
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	v := mustValidator(t, root)
	_, err := v.Resolve("link/file.txt")
	if !sxnerr.Is(err, sxnerr.KindSecurity) {
		t.Fatalf("Resolve(symlink escape) error = %v, want KindSecurity", err)
	}
}

func TestResolveAllowsSymlinkInsideRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	if err := os.Symlink(target, filepath.Join(root, "link")); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	v := mustValidator(t, root)
	got, err := v.Resolve("link/file.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !strings.HasPrefix(got, target) {
		t.Errorf("Resolve() = %q, want prefix %q", got, target)
	}
}

func TestResolveRejectsNullByte(t *testing.T) {
	root := t.TempDir()
	v := mustValidator(t, root)

	_, err := v.Resolve("bad\x00name")
	if !sxnerr.Is(err, sxnerr.KindSecurity) {
		t.Fatalf("Resolve(null byte) error = %v, want KindSecurity", err)
	}
}

func TestResolveRejectsTooLong(t *testing.T) {
	root := t.TempDir()
	v := mustValidator(t, root)

	_, err := v.Resolve(strings.Repeat("a", maxPathLength+1))
	if !sxnerr.Is(err, sxnerr.KindValidation) {
		t.Fatalf("Resolve(too long) error = %v, want KindValidation", err)
	}
}

func TestResolveAllowsMissingFinalComponent(t *testing.T) {
	root := t.TempDir()
	v := mustValidator(t, root)

	got, err := v.Resolve("not-yet-created.txt")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := filepath.Join(root, "not-yet-created.txt")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestCheckReadable(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := CheckReadable(file); err != nil {
		t.Errorf("CheckReadable() error = %v", err)
	}
	if err := CheckReadable(filepath.Join(root, "missing.txt")); !sxnerr.Is(err, sxnerr.KindNotFound) {
		t.Errorf("CheckReadable(missing) error = %v, want KindNotFound", err)
	}
}
