package filecopier

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func setup(t *testing.T) (*Copier, string) {
	t.Helper()
	root := t.TempDir()
	c, err := New(root, []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, root
}

func TestCopyPlainFile(t *testing.T) {
	c, root := setup(t)
	if err := os.WriteFile(filepath.Join(root, "src.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	res, err := c.Copy(Request{Source: "src.txt", Destination: "dest.txt", Required: true})
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if res.Skipped {
		t.Fatal("Copy() unexpectedly skipped")
	}

	got, err := os.ReadFile(filepath.Join(root, "dest.txt"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("dest content = %q, want %q", got, "hello")
	}
}

func TestCopySecretLikeDefaultsMode(t *testing.T) {
	c, root := setup(t)
	if err := os.WriteFile(filepath.Join(root, "master.key"), []byte("secret-value"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := c.Copy(Request{Source: "master.key", Destination: "config/master.key", Required: true}); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(root, "config", "master.key"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestCopyMissingRequiredSourceFails(t *testing.T) {
	c, _ := setup(t)
	_, err := c.Copy(Request{Source: "missing.txt", Destination: "dest.txt", Required: true})
	if err == nil {
		t.Fatal("Copy() expected error for missing required source")
	}
}

func TestCopyMissingOptionalSourceSkips(t *testing.T) {
	c, _ := setup(t)
	res, err := c.Copy(Request{Source: "missing.txt", Destination: "dest.txt", Required: false})
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if !res.Skipped {
		t.Error("Copy() expected Skipped=true for missing optional source")
	}
}

func TestCopySymlinkStrategy(t *testing.T) {
	c, root := setup(t)
	src := filepath.Join(root, "src.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	res, err := c.Copy(Request{Source: "src.txt", Destination: "link.txt", Strategy: StrategySymlink, Required: true})
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if res.Change.Kind != ChangeSymlinkCreated {
		t.Errorf("Change.Kind = %v, want %v", res.Change.Kind, ChangeSymlinkCreated)
	}

	target, err := os.Readlink(filepath.Join(root, "link.txt"))
	if err != nil {
		t.Fatalf("Readlink() error = %v", err)
	}
	if target != src {
		t.Errorf("Readlink() = %q, want %q", target, src)
	}
}

func TestCopyEncrypted(t *testing.T) {
	c, root := setup(t)
	if err := os.WriteFile(filepath.Join(root, "src.txt"), []byte("top secret"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	res, err := c.Copy(Request{Source: "src.txt", Destination: "dest.enc", Encrypt: true, Required: true})
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if !res.Change.Encrypted {
		t.Fatal("Change.Encrypted = false, want true")
	}

	ciphertext, err := os.ReadFile(filepath.Join(root, "dest.enc"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(ciphertext) == "top secret" {
		t.Fatal("ciphertext equals plaintext")
	}

	nonce, err := hex.DecodeString(res.Change.EncryptionNonce)
	if err != nil {
		t.Fatalf("decode nonce: %v", err)
	}
	plaintext, err := Decrypt([]byte("0123456789abcdef0123456789abcdef"), filepath.Join(root, "dest.enc"), nonce, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if string(plaintext) != "top secret" {
		t.Errorf("Decrypt() = %q, want %q", plaintext, "top secret")
	}
}

func TestRollbackRestoresPriorContent(t *testing.T) {
	c, root := setup(t)
	dest := filepath.Join(root, "dest.txt")
	if err := os.WriteFile(dest, []byte("original"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "src.txt"), []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	res, err := c.Copy(Request{Source: "src.txt", Destination: "dest.txt", Required: true})
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}

	if err := Rollback(res.Change); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "original" {
		t.Errorf("after rollback content = %q, want %q", got, "original")
	}
}

func TestRollbackRemovesCreatedFile(t *testing.T) {
	c, root := setup(t)
	if err := os.WriteFile(filepath.Join(root, "src.txt"), []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	res, err := c.Copy(Request{Source: "src.txt", Destination: "dest.txt", Required: true})
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}

	if err := Rollback(res.Change); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "dest.txt")); !os.IsNotExist(err) {
		t.Errorf("dest.txt still exists after rollback, stat err = %v", err)
	}
}
