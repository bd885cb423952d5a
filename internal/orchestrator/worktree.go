package orchestrator

import (
	"context"
	"time"

	"github.com/sxn-dev/sxn/internal/execx"
	"github.com/sxn-dev/sxn/internal/store"
	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// addWorktreeAt runs `git -C project.Path worktree add -B branch dest
// project.DefaultBranch`, creating branch if it doesn't already exist
// locally and resetting it to the default branch if it does. It shells
// out through the Command Executor — go-git stays read-only in this
// package, reserved for the default-branch/author inspection the
// registration flow needs.
func addWorktreeAt(ctx context.Context, executor *execx.Executor, project store.Project, dest, branch string) (store.Worktree, error) {
	argv := []string{"git", "-C", project.Path, "worktree", "add", "-B", branch, dest, project.DefaultBranch}
	res, err := executor.Execute(ctx, argv, execx.Opts{Dir: project.Path, Timeout: 120 * time.Second})
	if err != nil {
		return store.Worktree{}, sxnerr.Wrap(sxnerr.KindExecution, err, "git worktree add for project %q", project.Name)
	}
	if !res.Success {
		return store.Worktree{}, sxnerr.New(sxnerr.KindExecution, "git worktree add for project %q exited %d: %s", project.Name, res.ExitCode, res.Stderr)
	}
	return store.Worktree{
		ProjectName: project.Name,
		Path:        dest,
		Branch:      branch,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// removeWorktreeAt runs `git worktree remove --force` from inside the
// project's own repository, detaching the checkout at wt.Path. Used by
// RemoveSession and by CreateSession's own rollback when a later
// project's worktree fails to materialize.
func removeWorktreeAt(ctx context.Context, executor *execx.Executor, project store.Project, wt store.Worktree) error {
	argv := []string{"git", "-C", project.Path, "worktree", "remove", "--force", wt.Path}
	res, err := executor.Execute(ctx, argv, execx.Opts{Dir: project.Path, Timeout: 60 * time.Second})
	if err != nil {
		return sxnerr.Wrap(sxnerr.KindExecution, err, "git worktree remove for project %q", project.Name)
	}
	if !res.Success {
		return sxnerr.New(sxnerr.KindExecution, "git worktree remove for project %q exited %d: %s", project.Name, res.ExitCode, res.Stderr)
	}
	return nil
}
