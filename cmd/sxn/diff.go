package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/sxn-dev/sxn/internal/tmpl"
)

// newDiffCmd previews what a template rule would write without applying
// it: render <src> against <session>'s worktree for <project>, and show
// a line diff against whatever already sits at that worktree-relative
// destination path (or the full rendered text if nothing is there yet).
func newDiffCmd() *cobra.Command {
	var (
		sessionName string
		projectName string
	)
	cmd := &cobra.Command{
		Use:   "diff <template-src> <dest>",
		Short: "Preview a template render against a session's worktree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.store.GetByName(cmd.Context(), sessionName)
			if err != nil {
				return err
			}
			wt, ok := sess.Worktrees[projectName]
			if !ok {
				return fmt.Errorf("session %q has no worktree for project %q", sessionName, projectName)
			}
			project, err := a.store.GetProject(cmd.Context(), projectName)
			if err != nil {
				return err
			}

			srcText, err := os.ReadFile(filepath.Join(wt.Path, args[0]))
			if err != nil {
				return fmt.Errorf("read template source: %w", err)
			}

			builder := tmpl.NewBuilder(a.orc.Executor)
			namespace, err := builder.Build(cmd.Context(), tmpl.SessionInfo{
				Name:        sess.Name,
				Status:      string(sess.Status),
				Description: sess.Description,
				Tags:        sess.Tags,
				Metadata:    sess.Metadata,
			}, tmpl.ProjectInfo{
				Name:          project.Name,
				Path:          project.Path,
				Type:          project.Type,
				DefaultBranch: project.DefaultBranch,
			}, wt.Path, nil)
			if err != nil {
				return err
			}

			rendered, err := tmpl.Render(string(srcText), namespace)
			if err != nil {
				return err
			}

			destPath := filepath.Join(wt.Path, args[1])
			existing, err := os.ReadFile(destPath)
			if err != nil {
				if !os.IsNotExist(err) {
					return fmt.Errorf("read destination: %w", err)
				}
				existing = nil
			}

			dmp := diffmatchpatch.New()
			diffs := dmp.DiffMain(string(existing), rendered, false)
			fmt.Fprintln(cmd.OutOrStdout(), dmp.DiffPrettyText(diffs))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionName, "session", "", "session name (required)")
	cmd.Flags().StringVar(&projectName, "project", "", "project name within the session (required)")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
