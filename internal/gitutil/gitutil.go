// Package gitutil provides read-only git repository inspection used by
// the orchestrator to choose a worktree's base branch and attribute
// its provenance — never to mutate a repository, which stays the
// Command Executor's job (`git worktree add`, run through the
// allow-listed, environment-scrubbed executor).
package gitutil

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// Author is the git identity that will be attributed to commits made
// inside a session's worktrees.
type Author struct {
	Name  string
	Email string
}

// Open opens the repository rooted at path.
func Open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository at %s: %w", path, err)
	}
	return repo, nil
}

// DefaultBranch resolves the repository's default branch: origin/HEAD's
// target if a remote is configured, else whichever of main/master
// exists as a local branch, else the current branch.
func DefaultBranch(repo *git.Repository) (string, error) {
	if ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", "HEAD"), true); err == nil && ref != nil {
		target := ref.Target().String()
		const prefix = "refs/remotes/origin/"
		if strings.HasPrefix(target, prefix) {
			return strings.TrimPrefix(target, prefix), nil
		}
	}

	for _, candidate := range []string{"main", "master"} {
		if _, err := repo.Reference(plumbing.NewBranchReferenceName(candidate), true); err == nil {
			return candidate, nil
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("repository HEAD is detached, no branch to use as default")
	}
	return head.Name().Short(), nil
}

// ConfiguredAuthor reads user.name/user.email from the repository's
// local config, falling back to the global config for whichever half
// is unset, and finally to sensible placeholders so a worktree can
// still be created without a configured identity.
func ConfiguredAuthor(repo *git.Repository) Author {
	var name, email string
	if cfg, err := repo.Config(); err == nil {
		name = cfg.User.Name
		email = cfg.User.Email
	}
	if name == "" || email == "" {
		if global, err := config.LoadConfig(config.GlobalScope); err == nil {
			if name == "" {
				name = global.User.Name
			}
			if email == "" {
				email = global.User.Email
			}
		}
	}
	if name == "" {
		name = "unknown"
	}
	if email == "" {
		email = "unknown@local"
	}
	return Author{Name: name, Email: email}
}

// HeadSHA returns the full hex SHA of the repository's current commit.
func HeadSHA(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
