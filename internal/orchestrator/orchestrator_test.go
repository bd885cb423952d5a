package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/sxn-dev/sxn/internal/execx"
	"github.com/sxn-dev/sxn/internal/rules"
	"github.com/sxn-dev/sxn/internal/store"
	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// initProjectRepo creates a throwaway git repository with one commit and
// a package.json marking it as a plain JavaScript project, so the
// detector's suggested default rules are exercised.
func initProjectRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"demo"}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET=1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree() error = %v", err)
	}
	if _, err := wt.Add("package.json"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := wt.Add(".env"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	sig := &object.Signature{Name: "Ada Lovelace", Email: "ada@example.com", When: time.Unix(0, 0)}
	if _, err := wt.Commit("initial", &git.CommitOptions{Author: sig}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return dir
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sxn.db")
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	executor := execx.New()
	executor.Allow("true", "false", "npm")

	sessionsRoot := filepath.Join(t.TempDir(), "sessions")
	orc, err := New(st, executor, sessionsRoot, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return orc
}

func TestRegisterProjectDetectsTypeAndDefaultBranch(t *testing.T) {
	orc := newTestOrchestrator(t)
	ctx := context.Background()
	projectDir := initProjectRepo(t)

	project, err := orc.RegisterProject(ctx, "demo", projectDir)
	if err != nil {
		t.Fatalf("RegisterProject() error = %v", err)
	}
	if project.Type != "javascript" {
		t.Errorf("Type = %q, want javascript", project.Type)
	}
	if project.DefaultBranch == "" {
		t.Errorf("DefaultBranch is empty")
	}
}

func TestRegisterProjectRejectsDuplicateName(t *testing.T) {
	orc := newTestOrchestrator(t)
	ctx := context.Background()
	projectDir := initProjectRepo(t)

	if _, err := orc.RegisterProject(ctx, "demo", projectDir); err != nil {
		t.Fatalf("RegisterProject() error = %v", err)
	}
	_, err := orc.RegisterProject(ctx, "demo", projectDir)
	if !sxnerr.Is(err, sxnerr.KindConflict) {
		t.Fatalf("RegisterProject() duplicate error = %v, want KindConflict", err)
	}
}

func TestCreateSessionMaterializesWorktreeAndAppliesRules(t *testing.T) {
	orc := newTestOrchestrator(t)
	ctx := context.Background()
	projectDir := initProjectRepo(t)

	if _, err := orc.RegisterProject(ctx, "demo", projectDir); err != nil {
		t.Fatalf("RegisterProject() error = %v", err)
	}

	result, err := orc.CreateSession(ctx, CreateSessionRequest{
		Name: "feature-x",
		Projects: []ProjectRule{
			{
				ProjectName: "demo",
				Overrides: []rules.Config{
					{
						Key:  "install_deps",
						Type: rules.TypeSetupCommands,
						SetupCommands: []rules.CommandEntry{
							{Args: []string{"true"}, Condition: string(rules.ConditionAlways)},
						},
						DependsOn: []string{"copy_env"},
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if result.Session.Name != "feature-x" {
		t.Errorf("Session.Name = %q, want feature-x", result.Session.Name)
	}
	wt, ok := result.Session.Worktrees["demo"]
	if !ok {
		t.Fatalf("session has no worktree for project demo")
	}
	if _, err := os.Stat(filepath.Join(wt.Path, ".env")); err != nil {
		t.Errorf("expected .env to be copied into worktree: %v", err)
	}
	if len(result.Applied) != 1 {
		t.Fatalf("len(Applied) = %d, want 1", len(result.Applied))
	}
}

func TestCreateSessionRejectsDuplicateName(t *testing.T) {
	orc := newTestOrchestrator(t)
	ctx := context.Background()
	projectDir := initProjectRepo(t)
	if _, err := orc.RegisterProject(ctx, "demo", projectDir); err != nil {
		t.Fatalf("RegisterProject() error = %v", err)
	}

	req := CreateSessionRequest{Name: "dup", Projects: []ProjectRule{{ProjectName: "demo"}}}
	if _, err := orc.CreateSession(ctx, req); err != nil {
		t.Fatalf("first CreateSession() error = %v", err)
	}
	if _, err := orc.CreateSession(ctx, req); !sxnerr.Is(err, sxnerr.KindConflict) {
		t.Fatalf("second CreateSession() error = %v, want KindConflict", err)
	}
}

func TestCreateSessionRollsBackOnRuleFailure(t *testing.T) {
	orc := newTestOrchestrator(t)
	ctx := context.Background()
	projectDir := initProjectRepo(t)
	if _, err := orc.RegisterProject(ctx, "demo", projectDir); err != nil {
		t.Fatalf("RegisterProject() error = %v", err)
	}

	_, err := orc.CreateSession(ctx, CreateSessionRequest{
		Name: "broken",
		Projects: []ProjectRule{
			{
				ProjectName: "demo",
				Overrides: []rules.Config{
					{
						Key:  "install_deps",
						Type: rules.TypeSetupCommands,
						SetupCommands: []rules.CommandEntry{
							{Args: []string{"false"}, Condition: string(rules.ConditionAlways)},
						},
						DependsOn: []string{"copy_env"},
					},
				},
			},
		},
	})
	if err == nil {
		t.Fatal("CreateSession() expected error from a failing setup command")
	}
	if _, err := os.Stat(filepath.Join(orc.SessionsRoot, "broken")); !os.IsNotExist(err) {
		t.Errorf("session directory should have been cleaned up, stat err = %v", err)
	}
	if _, err := orc.ListSessions(ctx, store.ListOptions{}); err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
}

func TestRemoveSessionRequiresDeactivation(t *testing.T) {
	orc := newTestOrchestrator(t)
	ctx := context.Background()
	projectDir := initProjectRepo(t)
	if _, err := orc.RegisterProject(ctx, "demo", projectDir); err != nil {
		t.Fatalf("RegisterProject() error = %v", err)
	}
	result, err := orc.CreateSession(ctx, CreateSessionRequest{
		Name:     "active-session",
		Projects: []ProjectRule{{ProjectName: "demo"}},
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	_ = result

	err = orc.RemoveSession(ctx, "active-session")
	if !sxnerr.Is(err, sxnerr.KindConflict) {
		t.Fatalf("RemoveSession() on active session error = %v, want KindConflict", err)
	}

	if _, err := orc.DeactivateSession(ctx, "active-session"); err != nil {
		t.Fatalf("DeactivateSession() error = %v", err)
	}
	if err := orc.RemoveSession(ctx, "active-session"); err != nil {
		t.Fatalf("RemoveSession() after deactivation error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(orc.SessionsRoot, "active-session")); !os.IsNotExist(err) {
		t.Errorf("session directory should have been removed, stat err = %v", err)
	}
}

func TestRemoveProjectRejectsWhileReferenced(t *testing.T) {
	orc := newTestOrchestrator(t)
	ctx := context.Background()
	projectDir := initProjectRepo(t)
	if _, err := orc.RegisterProject(ctx, "demo", projectDir); err != nil {
		t.Fatalf("RegisterProject() error = %v", err)
	}
	if _, err := orc.CreateSession(ctx, CreateSessionRequest{
		Name:     "uses-demo",
		Projects: []ProjectRule{{ProjectName: "demo"}},
	}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := orc.RemoveProject(ctx, "demo"); !sxnerr.Is(err, sxnerr.KindConflict) {
		t.Fatalf("RemoveProject() error = %v, want KindConflict", err)
	}
}
