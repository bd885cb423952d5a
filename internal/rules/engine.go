package rules

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/sxn-dev/sxn/internal/execx"
	"github.com/sxn-dev/sxn/internal/filecopier"
	"github.com/sxn-dev/sxn/internal/pathvalidator"
	"github.com/sxn-dev/sxn/internal/sxnerr"
	"github.com/sxn-dev/sxn/internal/tmpl"
)

// State is a rule's position in the apply state machine: pending ->
// running -> {applied, failed}, or pending -> skipped when an upstream
// required dependency fails with continue_on_failure set.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateApplied State = "applied"
	StateSkipped State = "skipped"
	StateFailed  State = "failed"
)

// Result is one rule's outcome after Apply returns.
type Result struct {
	Key         string
	State       State
	Reason      string // set for StateSkipped/StateFailed
	FileChanges []filecopier.Change
	Commands    []CommandRecord
}

// ExecutionResult is Apply's full return value.
type ExecutionResult struct {
	Order   []string // the topological linearization actually used for scheduling ties
	Results map[string]*Result
	Applied []string // keys in application order, oldest first — Rollback undoes this reversed
}

// ApplyOptions configures a single Apply call.
type ApplyOptions struct {
	Parallel       bool
	MaxParallelism int  // 0 means min(runtime.NumCPU(), 4)
	DBPresent      bool // fed to db_not_exists condition checks
}

// Engine wires the primitives rule types delegate to. SessionDir is the
// directory setup_commands run in and copy_files/template destinations
// resolve under.
type Engine struct {
	Copier     *filecopier.Copier
	Executor   *execx.Executor
	Validator  *pathvalidator.Validator
	Namespace  tmpl.Namespace
	SessionDir string
}

// Apply schedules and runs cfgs, respecting their dependency graph.
func (e *Engine) Apply(ctx context.Context, cfgs []Config, opts ApplyOptions) (*ExecutionResult, error) {
	if err := Validate(cfgs); err != nil {
		return nil, err
	}
	order, err := topologicalOrder(cfgs)
	if err != nil {
		return nil, err
	}

	maxParallelism := opts.MaxParallelism
	if maxParallelism <= 0 {
		maxParallelism = runtime.NumCPU()
		if maxParallelism > 4 {
			maxParallelism = 4
		}
	}
	if !opts.Parallel {
		maxParallelism = 1
	}

	sched := newScheduler(cfgs)
	exec := &execution{
		engine:  e,
		cfgs:    indexConfigs(cfgs),
		sched:   sched,
		opts:    opts,
		results: map[string]*Result{},
	}
	exec.run(ctx, maxParallelism)

	return &ExecutionResult{Order: order, Results: exec.results, Applied: exec.appliedOrder}, nil
}

// Rollback undoes every StateApplied rule in reverse application order.
// Rollback errors are collected but do not stop the remaining undo
// steps.
func Rollback(result *ExecutionResult) []error {
	var errs []error
	for i := len(result.Applied) - 1; i >= 0; i-- {
		key := result.Applied[i]
		r := result.Results[key]
		if r == nil {
			continue
		}
		for j := len(r.FileChanges) - 1; j >= 0; j-- {
			if err := filecopier.Rollback(r.FileChanges[j]); err != nil {
				errs = append(errs, err)
			}
		}
		// setup_commands leave no reversible change; already-run commands
		// are not undone.
	}
	return errs
}

func indexConfigs(cfgs []Config) map[string]Config {
	m := make(map[string]Config, len(cfgs))
	for _, c := range cfgs {
		m[c.Key] = c
	}
	return m
}

// scheduler tracks the mutable DAG state (remaining in-degree, ready
// set) shared by every worker. Its mutex is held only while updating
// the graph, never across I/O.
type scheduler struct {
	mu         sync.Mutex
	cond       *sync.Cond
	indegree   map[string]int
	dependents map[string][]string
	ready      []string
	inFlight   int
	stopNew    bool
}

func newScheduler(cfgs []Config) *scheduler {
	s := &scheduler{
		indegree:   map[string]int{},
		dependents: map[string][]string{},
	}
	s.cond = sync.NewCond(&s.mu)
	for _, c := range cfgs {
		if _, ok := s.indegree[c.Key]; !ok {
			s.indegree[c.Key] = 0
		}
		s.indegree[c.Key] += len(c.DependsOn)
		for _, dep := range c.DependsOn {
			s.dependents[dep] = append(s.dependents[dep], c.Key)
		}
	}
	for _, deps := range s.dependents {
		sort.Strings(deps)
	}
	for key, n := range s.indegree {
		if n == 0 {
			s.ready = append(s.ready, key)
		}
	}
	sort.Strings(s.ready)
	return s
}

// next blocks until a rule is ready to run, no more work will ever be
// ready, or the scheduler has stopped accepting new work.
func (s *scheduler) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.ready) == 0 && s.inFlight > 0 && !s.stopNew {
		s.cond.Wait()
	}
	if s.stopNew || len(s.ready) == 0 {
		return "", false
	}
	key := s.ready[0]
	s.ready = s.ready[1:]
	s.inFlight++
	return key, true
}

// finish records that key concluded in finalState, decrements the
// remaining work count, and — unless skipPropagation already handled it
// — releases any dependent whose last unresolved dependency was key.
func (s *scheduler) finish(key string, resolved map[string]bool, stopFurther bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if stopFurther {
		s.stopNew = true
	}
	for _, dep := range s.dependents[key] {
		if resolved[dep] {
			continue
		}
		s.indegree[dep]--
		if s.indegree[dep] == 0 {
			s.ready = insertSorted(s.ready, dep)
		}
	}
	s.cond.Broadcast()
}

// markResolved marks key as concluded (skipped, typically) without it
// ever running, releasing its dependents the same way finish does.
func (s *scheduler) markResolved(key string, resolved map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dep := range s.dependents[key] {
		if resolved[dep] {
			continue
		}
		s.indegree[dep]--
		if s.indegree[dep] == 0 {
			s.ready = insertSorted(s.ready, dep)
		}
	}
	s.cond.Broadcast()
}

// execution runs one Apply call to completion.
type execution struct {
	engine *Engine
	cfgs   map[string]Config
	sched  *scheduler

	mu           sync.Mutex
	results      map[string]*Result
	appliedOrder []string
	opts         ApplyOptions
}

func (ex *execution) run(ctx context.Context, maxParallelism int) {
	sem := make(chan struct{}, maxParallelism)
	var wg sync.WaitGroup

	for {
		key, ok := ex.sched.next()
		if !ok {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			defer func() { <-sem }()
			ex.execOne(ctx, key)
		}(key)
	}
	wg.Wait()
}

func (ex *execution) resolved(key string) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	_, ok := ex.results[key]
	return ok
}

func (ex *execution) resolvedSnapshot() map[string]bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	snap := make(map[string]bool, len(ex.results))
	for k := range ex.results {
		snap[k] = true
	}
	return snap
}

func (ex *execution) setResult(r *Result) {
	ex.mu.Lock()
	ex.results[r.Key] = r
	if r.State == StateApplied {
		ex.appliedOrder = append(ex.appliedOrder, r.Key)
	}
	ex.mu.Unlock()
}

func (ex *execution) execOne(ctx context.Context, key string) {
	if ex.resolved(key) {
		ex.sched.finish(key, ex.resolvedSnapshot(), false)
		return
	}

	cfg := ex.cfgs[key]
	result := ex.perform(ctx, cfg)
	ex.setResult(result)

	stopFurther := false
	if result.State == StateFailed {
		if cfg.ContinueOnFailure {
			ex.cascadeSkip(key)
		} else {
			stopFurther = true
		}
	}
	ex.sched.finish(key, ex.resolvedSnapshot(), stopFurther)
}

// cascadeSkip marks every not-yet-resolved transitive dependent of key
// as StateSkipped with reason "upstream failure".
func (ex *execution) cascadeSkip(key string) {
	queue := []string{key}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		ex.sched.mu.Lock()
		deps := append([]string(nil), ex.sched.dependents[cur]...)
		ex.sched.mu.Unlock()

		for _, dep := range deps {
			if ex.resolved(dep) {
				continue
			}
			ex.setResult(&Result{Key: dep, State: StateSkipped, Reason: "upstream failure"})
			ex.sched.markResolved(dep, ex.resolvedSnapshot())
			queue = append(queue, dep)
		}
	}
}

func (ex *execution) perform(ctx context.Context, cfg Config) *Result {
	switch cfg.Type {
	case TypeCopyFiles:
		changes, err := runCopyFiles(ex.engine.Copier, cfg.CopyFiles)
		if err != nil {
			return &Result{Key: cfg.Key, State: StateFailed, Reason: err.Error(), FileChanges: changes}
		}
		return &Result{Key: cfg.Key, State: StateApplied, FileChanges: changes}

	case TypeSetupCommands:
		records, err := runSetupCommands(ctx, ex.engine.Executor, ex.engine.SessionDir, ex.opts.DBPresent, cfg.SetupCommands)
		if err != nil {
			return &Result{Key: cfg.Key, State: StateFailed, Reason: err.Error(), Commands: records}
		}
		return &Result{Key: cfg.Key, State: StateApplied, Commands: records}

	case TypeTemplate:
		change, skipped, err := runTemplate(ex.engine.Validator, ex.engine.Namespace, cfg.TemplateSrc, cfg.TemplateDst, cfg.TemplateVariables, cfg.TemplateOverwrite)
		if err != nil {
			return &Result{Key: cfg.Key, State: StateFailed, Reason: err.Error()}
		}
		if skipped {
			return &Result{Key: cfg.Key, State: StateSkipped, Reason: "destination already exists"}
		}
		return &Result{Key: cfg.Key, State: StateApplied, FileChanges: []filecopier.Change{change}}

	default:
		return &Result{Key: cfg.Key, State: StateFailed, Reason: "unknown rule type"}
	}
}

func errCommandFailed(args []string, exitCode int, stderr string) error {
	return sxnerr.New(sxnerr.KindExecution, "command %v exited %d: %s", args, exitCode, stderr)
}
