// Package orchestrator composes the Path Validator, Command Executor,
// File Copier, Template Processor, Session Store, Project Detector, and
// Rules Engine to create, apply rules to, and remove sessions. It is a
// thin coordination layer: almost nothing here is novel logic, it is
// wiring the other packages in the right order and persisting their
// results.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sxn-dev/sxn/internal/detector"
	"github.com/sxn-dev/sxn/internal/execx"
	"github.com/sxn-dev/sxn/internal/filecopier"
	"github.com/sxn-dev/sxn/internal/gitutil"
	"github.com/sxn-dev/sxn/internal/logging"
	"github.com/sxn-dev/sxn/internal/pathvalidator"
	"github.com/sxn-dev/sxn/internal/rules"
	"github.com/sxn-dev/sxn/internal/store"
	"github.com/sxn-dev/sxn/internal/sxnerr"
	"github.com/sxn-dev/sxn/internal/tmpl"
)

// Orchestrator is the composition root. SessionsRoot is the directory
// under which every session gets its own subdirectory; MasterKey is
// passed through to the File Copier for Encrypt-requesting rules and
// may be empty (encryption then fails validation, not silently skips).
type Orchestrator struct {
	Store        *store.Store
	Executor     *execx.Executor
	SessionsRoot string
	MasterKey    []byte

	DefaultMaxParallelism int
}

// New builds an Orchestrator rooted at sessionsRoot, creating it if it
// doesn't already exist.
func New(st *store.Store, executor *execx.Executor, sessionsRoot string, masterKey []byte) (*Orchestrator, error) {
	if err := os.MkdirAll(sessionsRoot, 0o755); err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "create sessions root %q", sessionsRoot)
	}
	return &Orchestrator{
		Store:                 st,
		Executor:              executor,
		SessionsRoot:          sessionsRoot,
		MasterKey:             masterKey,
		DefaultMaxParallelism: 4,
	}, nil
}

// RegisterProject opens the repository at path, resolves its default
// branch and detected project type, and persists the registration.
func (o *Orchestrator) RegisterProject(ctx context.Context, name, path string) (store.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return store.Project{}, sxnerr.Wrap(sxnerr.KindValidation, err, "resolve project path %q", path)
	}
	repo, err := gitutil.Open(abs)
	if err != nil {
		return store.Project{}, sxnerr.Wrap(sxnerr.KindValidation, err, "open repository at %q", abs)
	}
	branch, err := gitutil.DefaultBranch(repo)
	if err != nil {
		return store.Project{}, sxnerr.Wrap(sxnerr.KindValidation, err, "resolve default branch for %q", abs)
	}
	result, err := detector.Detect(abs)
	if err != nil {
		return store.Project{}, err
	}

	logging.Info(ctx, "registering project", "name", name, "path", abs, "type", string(result.Type), "default_branch", branch)
	return o.Store.RegisterProject(ctx, store.Project{
		Name:          name,
		Path:          abs,
		Type:          string(result.Type),
		DefaultBranch: branch,
	})
}

// RemoveProject deregisters name, refusing if any active session still
// references it.
func (o *Orchestrator) RemoveProject(ctx context.Context, name string) error {
	referencing, err := o.Store.ReferencingSessions(ctx, name)
	if err != nil {
		return err
	}
	if len(referencing) > 0 {
		return sxnerr.New(sxnerr.KindConflict, "project %q is still referenced by active sessions: %v", name, referencing)
	}
	return o.Store.RemoveProject(ctx, name)
}

// ProjectRule is one project's contribution to a CreateSession or Apply
// call: which registered project to use, what branch to check the
// worktree out as (defaults to the session name), and any rule
// overrides layered on top of the detector's suggested defaults.
type ProjectRule struct {
	ProjectName string
	Branch      string
	Overrides   []rules.Config
	Parallel    bool
	DBPresent   bool
}

// CreateSessionRequest describes a new session to materialize.
type CreateSessionRequest struct {
	Name        string
	LinearTask  string
	Description string
	Tags        []string
	Projects    []ProjectRule
}

// ProjectApplyResult is one project's rules-engine outcome within a
// CreateSession or Apply call.
type ProjectApplyResult struct {
	ProjectName string
	Worktree    store.Worktree
	Execution   *rules.ExecutionResult
}

// CreateSessionResult is CreateSession's full return value.
type CreateSessionResult struct {
	Session store.Session
	Applied []ProjectApplyResult
}

// CreateSession creates the session directory, materializes one
// worktree per requested project, runs each project's merged rule set,
// and persists the resulting session record. If any project's worktree
// creation or rule application fails, every worktree and directory
// created so far by this call is torn down and the session is never
// persisted — CreateSession is all-or-nothing from the caller's
// perspective.
func (o *Orchestrator) CreateSession(ctx context.Context, req CreateSessionRequest) (CreateSessionResult, error) {
	if err := store.ValidateName(req.Name); err != nil {
		return CreateSessionResult{}, sxnerr.Wrap(sxnerr.KindValidation, err, "session name")
	}
	if len(req.Projects) == 0 {
		return CreateSessionResult{}, sxnerr.New(sxnerr.KindValidation, "session %q: at least one project is required", req.Name)
	}

	sessionDir := filepath.Join(o.SessionsRoot, req.Name)
	if _, err := os.Stat(sessionDir); err == nil {
		return CreateSessionResult{}, sxnerr.New(sxnerr.KindConflict, "session directory %q already exists", sessionDir)
	}
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return CreateSessionResult{}, sxnerr.Wrap(sxnerr.KindStorage, err, "create session directory %q", sessionDir)
	}

	lock, err := acquireLock(filepath.Join(sessionDir, ".sxn"))
	if err != nil {
		_ = os.RemoveAll(sessionDir)
		return CreateSessionResult{}, err
	}
	defer func() { _ = lock.release() }()

	applied, worktrees, cleanupErr := o.materializeProjects(ctx, req, sessionDir)
	if cleanupErr != nil {
		return CreateSessionResult{}, cleanupErr
	}

	session, err := o.Store.Create(ctx, store.CreateInput{
		Name:        req.Name,
		LinearTask:  req.LinearTask,
		Description: req.Description,
		Tags:        req.Tags,
		Projects:    projectNames(req.Projects),
	})
	if err != nil {
		o.teardownWorktrees(ctx, req, worktrees)
		_ = os.RemoveAll(sessionDir)
		return CreateSessionResult{}, err
	}

	if len(worktrees) > 0 {
		wt := map[string]store.Worktree{}
		for name, w := range worktrees {
			wt[name] = w
		}
		session, err = o.Store.Update(ctx, session.ID, store.UpdateInput{Worktrees: &wt}, store.FormatVersion(session.UpdatedAt))
		if err != nil {
			o.teardownWorktrees(ctx, req, worktrees)
			_ = os.RemoveAll(sessionDir)
			return CreateSessionResult{}, err
		}
	}

	return CreateSessionResult{Session: session, Applied: applied}, nil
}

// materializeProjects creates each requested project's worktree and
// runs its merged rule set in turn, tearing down everything it created
// so far the moment one project fails.
func (o *Orchestrator) materializeProjects(ctx context.Context, req CreateSessionRequest, sessionDir string) ([]ProjectApplyResult, map[string]store.Worktree, error) {
	worktrees := map[string]store.Worktree{}
	var applied []ProjectApplyResult

	rollback := func() {
		o.teardownWorktrees(ctx, req, worktrees)
		_ = os.RemoveAll(sessionDir)
	}

	for _, pr := range req.Projects {
		project, err := o.Store.GetProject(ctx, pr.ProjectName)
		if err != nil {
			rollback()
			return nil, nil, err
		}

		branch := pr.Branch
		if branch == "" {
			branch = req.Name
		}
		worktreeDir := filepath.Join(sessionDir, project.Name)
		wt, err := addWorktreeAt(ctx, o.Executor, project, worktreeDir, branch)
		if err != nil {
			rollback()
			return nil, nil, err
		}
		worktrees[project.Name] = wt

		result, err := o.applyProject(ctx, req, project, worktreeDir, pr)
		if err != nil {
			rollback()
			return nil, nil, err
		}
		applied = append(applied, ProjectApplyResult{ProjectName: project.Name, Worktree: wt, Execution: result})
	}

	return applied, worktrees, nil
}

// applyProject merges the detector's suggested defaults for project
// with pr.Overrides and runs them through a freshly built Engine, rooted
// at the project (for copy_files sources) and the session directory (for
// copy_files/template destinations and setup_commands' working
// directory).
func (o *Orchestrator) applyProject(ctx context.Context, req CreateSessionRequest, project store.Project, worktreeDir string, pr ProjectRule) (*rules.ExecutionResult, error) {
	detected, err := detector.Detect(project.Path)
	if err != nil {
		return nil, err
	}
	defaults := detector.SuggestDefaultRules(detected.Type)
	cfgs := mergeRules(project.Path, defaults, pr.Overrides)
	if len(cfgs) == 0 {
		return &rules.ExecutionResult{}, nil
	}

	copier, err := filecopier.NewCrossRoot(project.Path, worktreeDir, o.MasterKey)
	if err != nil {
		return nil, err
	}
	validator, err := pathvalidator.New(worktreeDir)
	if err != nil {
		return nil, err
	}
	builder := tmpl.NewBuilder(o.Executor)
	namespace, err := builder.Build(ctx, tmpl.SessionInfo{
		Name:        req.Name,
		Status:      string(store.StatusActive),
		Description: req.Description,
		Tags:        req.Tags,
	}, tmpl.ProjectInfo{
		Name:          project.Name,
		Path:          project.Path,
		Type:          project.Type,
		DefaultBranch: project.DefaultBranch,
	}, worktreeDir, nil)
	if err != nil {
		return nil, err
	}

	engine := &rules.Engine{
		Copier:     copier,
		Executor:   o.Executor,
		Validator:  validator,
		Namespace:  namespace,
		SessionDir: worktreeDir,
	}

	logging.Info(ctx, "applying rules", "project", project.Name, "rule_count", len(cfgs))
	result, err := engine.Apply(ctx, cfgs, rules.ApplyOptions{
		Parallel:       pr.Parallel,
		MaxParallelism: o.DefaultMaxParallelism,
		DBPresent:      pr.DBPresent,
	})
	if err != nil {
		return nil, err
	}

	for _, r := range result.Results {
		if r.State == rules.StateFailed {
			if errs := rules.Rollback(result); len(errs) > 0 {
				logging.Error(ctx, "rollback encountered errors", "project", project.Name, "errors", fmt.Sprint(errs))
			}
			return result, sxnerr.New(sxnerr.KindExecution, "project %q: rule %q failed: %s", project.Name, r.Key, r.Reason)
		}
	}
	return result, nil
}

func (o *Orchestrator) teardownWorktrees(ctx context.Context, req CreateSessionRequest, worktrees map[string]store.Worktree) {
	for _, pr := range req.Projects {
		wt, ok := worktrees[pr.ProjectName]
		if !ok {
			continue
		}
		project, err := o.Store.GetProject(ctx, pr.ProjectName)
		if err != nil {
			continue
		}
		if err := removeWorktreeAt(ctx, o.Executor, project, wt); err != nil {
			logging.Warn(ctx, "failed to remove worktree during rollback", "project", pr.ProjectName, "error", err.Error())
		}
	}
}

func projectNames(prs []ProjectRule) []string {
	names := make([]string, len(prs))
	for i, pr := range prs {
		names[i] = pr.ProjectName
	}
	return names
}

// RemoveSession removes every worktree belonging to session, deletes
// its directory, and deletes its Store record. Only inactive or
// archived sessions may be removed — an active session must be
// deactivated first.
func (o *Orchestrator) RemoveSession(ctx context.Context, name string) error {
	session, err := o.Store.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if session.Status == store.StatusActive {
		return sxnerr.New(sxnerr.KindConflict, "session %q is active; deactivate it before removing", name)
	}

	sessionDir := filepath.Join(o.SessionsRoot, name)
	lock, err := acquireLock(filepath.Join(sessionDir, ".sxn"))
	if err != nil {
		return err
	}
	defer func() { _ = lock.release() }()

	for projectName, wt := range session.Worktrees {
		project, err := o.Store.GetProject(ctx, projectName)
		if err != nil {
			logging.Warn(ctx, "project no longer registered, skipping worktree removal", "project", projectName)
			continue
		}
		if err := removeWorktreeAt(ctx, o.Executor, project, wt); err != nil {
			return err
		}
	}

	if err := o.Store.Delete(ctx, session.ID); err != nil {
		return err
	}
	return os.RemoveAll(sessionDir)
}

// ActivateSession and DeactivateSession flip a session's status without
// touching its worktrees or files.
func (o *Orchestrator) ActivateSession(ctx context.Context, name string) (store.Session, error) {
	return o.setStatus(ctx, name, store.StatusActive)
}

func (o *Orchestrator) DeactivateSession(ctx context.Context, name string) (store.Session, error) {
	return o.setStatus(ctx, name, store.StatusInactive)
}

func (o *Orchestrator) setStatus(ctx context.Context, name string, status store.Status) (store.Session, error) {
	session, err := o.Store.GetByName(ctx, name)
	if err != nil {
		return store.Session{}, err
	}
	return o.Store.Update(ctx, session.ID, store.UpdateInput{Status: &status}, store.FormatVersion(session.UpdatedAt))
}

// ListSessions is a thin pass-through to the Store, kept here so callers
// depend on one package for every session operation.
func (o *Orchestrator) ListSessions(ctx context.Context, opts store.ListOptions) ([]store.Session, error) {
	return o.Store.List(ctx, opts)
}
