package tmpl

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sxn-dev/sxn/internal/execx"
	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// environmentPrefix is the only environment-variable prefix exposed to
// templates: a whitelisted prefix rather than the full process
// environment, so templates can't leak unrelated secrets.
const environmentPrefix = "SXN_TEMPLATE_"

// SessionInfo is the subset of a session record templates may see.
type SessionInfo struct {
	Name        string
	Status      string
	Description string
	Tags        []string
	Metadata    map[string]any
}

// ProjectInfo is the subset of a registered project record templates
// may see.
type ProjectInfo struct {
	Name          string
	Path          string
	Type          string
	DefaultBranch string
}

// Builder assembles a Namespace by reading a session/project pair, git
// state (shelled via the Command Executor, never go-git directly, so
// the Executor's allow-list and timeout apply uniformly), and a
// whitelisted slice of the process environment.
type Builder struct {
	Executor *execx.Executor
}

// NewBuilder returns a Builder that shells git through executor.
func NewBuilder(executor *execx.Executor) *Builder {
	return &Builder{Executor: executor}
}

// Build assembles the full seven-way namespace for rendering a template
// inside worktreeDir (the directory git commands run from — typically
// one of the session's worktrees).
func (b *Builder) Build(ctx context.Context, session SessionInfo, project ProjectInfo, worktreeDir string, custom map[string]any) (Namespace, error) {
	gitVars, err := b.gitVariables(ctx, worktreeDir)
	if err != nil {
		return Namespace{}, err
	}

	return Namespace{
		Session: map[string]any{
			"name":        session.Name,
			"status":      session.Status,
			"description": session.Description,
			"tags":        toAnySlice(session.Tags),
			"metadata":    session.Metadata,
		},
		Project: map[string]any{
			"name":           project.Name,
			"path":           project.Path,
			"type":           project.Type,
			"default_branch": project.DefaultBranch,
		},
		Git:         gitVars,
		User:        userVariables(),
		Environment: environmentVariables(),
		Timestamp:   timestampVariables(time.Now().UTC()),
		Custom:      custom,
	}, nil
}

func (b *Builder) gitVariables(ctx context.Context, dir string) (map[string]any, error) {
	vars := map[string]any{}

	sha, err := b.gitOutput(ctx, dir, "rev-parse", "HEAD")
	if err == nil {
		vars["sha"] = sha
	}

	branch, err := b.gitOutput(ctx, dir, "branch", "--show-current")
	if err == nil {
		vars["branch"] = branch
	}

	return vars, nil
}

func (b *Builder) gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	argv := append([]string{"git"}, args...)
	res, err := b.Executor.Execute(ctx, argv, execx.Opts{Dir: dir, Timeout: 10 * time.Second})
	if err != nil {
		return "", sxnerr.Wrap(sxnerr.KindExecution, err, "git %s", strings.Join(args, " "))
	}
	if !res.Success {
		return "", sxnerr.New(sxnerr.KindExecution, "git %s exited %d: %s", strings.Join(args, " "), res.ExitCode, res.Stderr)
	}
	return strings.TrimSpace(res.Stdout), nil
}

func userVariables() map[string]any {
	name := os.Getenv("USER")
	if name == "" {
		name = os.Getenv("USERNAME")
	}
	home, _ := os.UserHomeDir()
	return map[string]any{
		"name": name,
		"home": home,
	}
}

func environmentVariables() map[string]any {
	vars := map[string]any{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, environmentPrefix) {
			continue
		}
		vars[strings.TrimPrefix(name, environmentPrefix)] = value
	}
	return vars
}

func timestampVariables(now time.Time) map[string]any {
	return map[string]any{
		"iso8601": now.Format(time.RFC3339),
		"date":    now.Format("2006-01-02"),
		"time":    now.Format("15:04:05"),
		"unix":    now.Unix(),
	}
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
