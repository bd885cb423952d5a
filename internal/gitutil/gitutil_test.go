package gitutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initRepo(t *testing.T) (*git.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	sig := &object.Signature{Name: "Ada Lovelace", Email: "ada@example.com", When: time.Unix(0, 0)}
	if _, err := wt.Commit("initial", &git.CommitOptions{Author: sig}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return repo, dir
}

func TestDefaultBranchFallsBackToCurrentBranch(t *testing.T) {
	repo, _ := initRepo(t)

	got, err := DefaultBranch(repo)
	if err != nil {
		t.Fatalf("DefaultBranch() error = %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if want := head.Name().Short(); got != want {
		t.Errorf("DefaultBranch() = %q, want %q", got, want)
	}
}

func TestDefaultBranchPrefersMainOverCurrent(t *testing.T) {
	repo, _ := initRepo(t)
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), head.Hash())); err != nil {
		t.Fatalf("SetReference() error = %v", err)
	}

	got, err := DefaultBranch(repo)
	if err != nil {
		t.Fatalf("DefaultBranch() error = %v", err)
	}
	if got != "main" {
		t.Errorf("DefaultBranch() = %q, want main", got)
	}
}

func TestDefaultBranchUsesOriginHEAD(t *testing.T) {
	repo, _ := initRepo(t)
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{"https://example.com/repo.git"}}); err != nil {
		t.Fatalf("CreateRemote() error = %v", err)
	}
	remoteBranch := plumbing.NewRemoteReferenceName("origin", "trunk")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(remoteBranch, head.Hash())); err != nil {
		t.Fatalf("SetReference() error = %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.NewRemoteReferenceName("origin", "HEAD"), remoteBranch)); err != nil {
		t.Fatalf("SetReference() error = %v", err)
	}

	got, err := DefaultBranch(repo)
	if err != nil {
		t.Fatalf("DefaultBranch() error = %v", err)
	}
	if got != "trunk" {
		t.Errorf("DefaultBranch() = %q, want trunk", got)
	}
}

func TestConfiguredAuthorDefaultsNameWhenUnset(t *testing.T) {
	repo, _ := initRepo(t)

	author := ConfiguredAuthor(repo)
	if author.Name == "" {
		t.Errorf("ConfiguredAuthor().Name is empty, want a non-empty fallback")
	}
}

func TestHeadSHAMatchesHeadReference(t *testing.T) {
	repo, _ := initRepo(t)

	sha, err := HeadSHA(repo)
	if err != nil {
		t.Fatalf("HeadSHA() error = %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if sha != head.Hash().String() {
		t.Errorf("HeadSHA() = %q, want %q", sha, head.Hash().String())
	}
}

func TestOpenRejectsNonRepository(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir); err == nil {
		t.Fatal("Open() expected error for a directory with no .git")
	}
}
