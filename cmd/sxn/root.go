package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sxn-dev/sxn/internal/config"
	"github.com/sxn-dev/sxn/internal/execx"
	"github.com/sxn-dev/sxn/internal/logging"
	"github.com/sxn-dev/sxn/internal/orchestrator"
	"github.com/sxn-dev/sxn/internal/store"
)

// Version information, overridable at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// app bundles the resolved config and live handles a command's RunE
// needs. newApp opens the store fresh for every invocation: sxn has no
// long-running daemon, so each CLI call is its own short-lived process.
type app struct {
	cfg   config.Config
	store *store.Store
	orc   *orchestrator.Orchestrator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(os.Stderr, cfg.LogLevel)

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	executor := execx.New()
	if len(cfg.AllowedCommands) > 0 {
		executor.Allow(cfg.AllowedCommands...)
	}

	orc, err := orchestrator.New(st, executor, cfg.SessionsFolder, cfg.MasterKey)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	orc.DefaultMaxParallelism = cfg.DefaultMaxParallelism

	return &app{cfg: cfg, store: st, orc: orc}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// NewRootCmd builds the sxn command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sxn",
		Short:         "Manage isolated git-worktree development sessions",
		Long:          "sxn creates and tears down isolated git-worktree-based sessions across one or more registered projects, applying declarative rules to materialize secrets, configuration, and setup commands into each session.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newDiffCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sxn %s (%s)\n", Version, Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
