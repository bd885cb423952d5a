package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sxn-dev/sxn/internal/orchestrator"
	"github.com/sxn-dev/sxn/internal/rules"
	"github.com/sxn-dev/sxn/internal/store"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions",
	}
	cmd.AddCommand(newSessionCreateCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionActivateCmd())
	cmd.AddCommand(newSessionDeactivateCmd())
	cmd.AddCommand(newSessionRemoveCmd())
	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var (
		projects    []string
		linearTask  string
		description string
		tags        []string
		parallel    bool
		rulesFile   string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new session with one worktree per --project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(projects) == 0 {
				return fmt.Errorf("at least one --project is required")
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var overrides []rules.Config
			if rulesFile != "" {
				overrides, err = rules.LoadYAMLFile(rulesFile)
				if err != nil {
					return err
				}
			}

			prs := make([]orchestrator.ProjectRule, len(projects))
			for i, name := range projects {
				prs[i] = orchestrator.ProjectRule{ProjectName: name, Parallel: parallel, Overrides: overrides}
			}

			result, err := a.orc.CreateSession(cmd.Context(), orchestrator.CreateSessionRequest{
				Name:        args[0],
				LinearTask:  linearTask,
				Description: description,
				Tags:        tags,
				Projects:    prs,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created session %q\n", result.Session.Name)
			for _, applied := range result.Applied {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s (%d rules applied)\n", applied.ProjectName, applied.Worktree.Path, len(applied.Execution.Applied))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&projects, "project", nil, "registered project to include (repeatable)")
	cmd.Flags().StringVar(&linearTask, "task", "", "linked task identifier")
	cmd.Flags().StringVar(&description, "description", "", "session description")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag to attach (repeatable)")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "run each project's rules with parallel scheduling")
	cmd.Flags().StringVar(&rulesFile, "rules-file", "", "path to a rules.yaml file overriding detected defaults")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			opts := store.ListOptions{}
			if status != "" {
				opts.Filters.Status = store.Status(status)
			}
			sessions, err := a.orc.ListSessions(cmd.Context(), opts)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tPROJECTS\tUPDATED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", s.Name, s.Status, s.Projects, s.UpdatedAt.Format("2006-01-02T15:04:05Z"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, inactive, archived)")
	return cmd
}

func newSessionActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <name>",
		Short: "Mark a session active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.orc.ActivateSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated %q\n", args[0])
			return nil
		},
	}
}

func newSessionDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <name>",
		Short: "Mark a session inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.orc.DeactivateSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %q\n", args[0])
			return nil
		},
	}
}

func newSessionRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a session and its worktrees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.orc.RemoveSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %q\n", args[0])
			return nil
		},
	}
}
