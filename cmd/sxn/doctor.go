package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sxn-dev/sxn/internal/store"
)

// accessible reports whether interactive prompts should fall back to
// plain stdin reads, mirroring the ACCESSIBLE environment variable
// convention used across the rest of the toolchain.
func accessible() bool {
	return os.Getenv("ACCESSIBLE") != ""
}

// newAccessibleForm builds a huh form, switching to the accessible
// (plain-text) renderer when ACCESSIBLE is set.
func newAccessibleForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...)
	if accessible() {
		form = form.WithAccessible(true)
	}
	return form
}

func newDoctorCmd() *cobra.Command {
	var forceFlag bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Find and fix orphaned worktrees and lock files",
		Long: `Scan every registered project's worktrees for entries that no longer
have a matching session row, and sessions whose worktree directories have
disappeared from disk. For each problem found, offer to remove the
dangling worktree, the stale lock file, or the orphaned session record.

Use --force to apply every fix without prompting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return runDoctor(cmd, a, forceFlag)
		},
	}
	cmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "apply every fix without prompting")
	return cmd
}

type doctorProblem struct {
	description string
	fix         func() error
}

func runDoctor(cmd *cobra.Command, a *app, force bool) error {
	problems, err := findProblems(cmd, a)
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no problems found")
		return nil
	}

	for _, p := range problems {
		fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", p.description)

		apply := force
		if !force {
			var confirmed bool
			form := newAccessibleForm(
				huh.NewGroup(
					huh.NewConfirm().
						Title("Fix this now?").
						Value(&confirmed),
				),
			)
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
			apply = confirmed
		}

		if !apply {
			fmt.Fprintln(cmd.OutOrStdout(), "  -> skipped")
			continue
		}
		if err := p.fix(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  -> failed: %v\n", err)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), "  -> fixed")
	}
	return nil
}

// findProblems looks for sessions whose worktree directories no longer
// exist on disk (the session row survived a manual `rm -rf` of its
// worktree) and reports them as a fixable problem: removing the
// session's Store record once its files are already gone.
func findProblems(cmd *cobra.Command, a *app) ([]doctorProblem, error) {
	sessions, err := a.orc.ListSessions(cmd.Context(), store.ListOptions{})
	if err != nil {
		return nil, err
	}

	var problems []doctorProblem
	for _, sess := range sessions {
		sess := sess
		for projectName, wt := range sess.Worktrees {
			if _, err := os.Stat(wt.Path); !os.IsNotExist(err) {
				continue
			}
			projectName, wt := projectName, wt
			problems = append(problems, doctorProblem{
				description: fmt.Sprintf("session %q references project %q at %s, which no longer exists on disk", sess.Name, projectName, wt.Path),
				fix: func() error {
					_, updErr := a.store.Update(cmd.Context(), sess.ID, store.UpdateInput{
						Status: statusPtr(store.StatusArchived),
					}, "")
					return updErr
				},
			})
		}
	}
	return problems, nil
}

func statusPtr(s store.Status) *store.Status { return &s }
