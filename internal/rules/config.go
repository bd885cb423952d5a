// Package rules is the declarative engine that turns a set of named,
// interdependent rule entries into materialized session state: copied
// files, rendered templates, and executed setup commands. It schedules
// entries by their declared dependencies (Kahn's algorithm, ties broken
// alphabetically for determinism), runs them through a bounded worker
// pool when parallel execution is requested, and can roll back every
// applied change in reverse order on failure.
package rules

import (
	"sort"

	"github.com/sxn-dev/sxn/internal/filecopier"
	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// Type names a rule's behavior.
type Type string

const (
	TypeCopyFiles     Type = "copy_files"
	TypeSetupCommands Type = "setup_commands"
	TypeTemplate      Type = "template"
)

// Condition gates whether a single setup_commands entry runs.
type Condition string

const (
	ConditionAlways        Condition = "always"
	conditionFileExists    string    = "file_exists:"
	conditionFileMissing   string    = "file_missing:"
	ConditionDBNotExists   Condition = "db_not_exists"
	ConditionFileNotExists Condition = "file_not_exists"
)

// FileEntry is one copy_files operation, the wire shape of a rule's
// "files" list entries.
type FileEntry struct {
	Source      string
	Destination string
	Strategy    filecopier.Strategy
	Permissions string // optional octal string, e.g. "0600"; "" means let filecopier choose
	Encrypt     bool
	Required    bool
}

// CommandEntry is one setup_commands operation.
type CommandEntry struct {
	Args             []string
	Env              map[string]string
	TimeoutSeconds   int // 0 means execx.DefaultTimeout
	WorkingDirectory string // relative to the session directory; "" means the session directory itself
	Condition        string // one of the Condition* constants, or "" meaning always
	// Optional, when true, converts a nonzero exit into a recorded
	// failure without aborting the batch. The external schema exposes
	// this inverted as "required" (default true); Optional's zero value
	// therefore matches that default without every caller needing to
	// set it explicitly.
	Optional bool
}

// Config is a single rule entry: a name, a type, its dependencies, and
// exactly one of the type-specific configs populated.
type Config struct {
	Key               string
	Type              Type
	DependsOn         []string
	ContinueOnFailure bool

	CopyFiles         []FileEntry    // when Type == TypeCopyFiles
	SetupCommands     []CommandEntry // when Type == TypeSetupCommands
	TemplateSrc       string         // when Type == TypeTemplate
	TemplateDst       string         // when Type == TypeTemplate
	TemplateVariables map[string]any // when Type == TypeTemplate, merged into the render namespace's Custom map
	// TemplateOverwrite controls whether an existing destination file is
	// replaced; false (the default) leaves it alone and records a skip.
	TemplateOverwrite bool
}

// Validate checks the whole rule set: every entry names a known type
// with a non-empty type-specific config, every dependency references an
// existing key, and the induced graph is acyclic.
func Validate(cfgs []Config) error {
	seen := map[string]bool{}
	for _, c := range cfgs {
		if c.Key == "" {
			return sxnerr.New(sxnerr.KindValidation, "rule entry missing key")
		}
		if seen[c.Key] {
			return sxnerr.New(sxnerr.KindValidation, "duplicate rule key %q", c.Key)
		}
		seen[c.Key] = true

		switch c.Type {
		case TypeCopyFiles:
			if len(c.CopyFiles) == 0 {
				return sxnerr.New(sxnerr.KindValidation, "rule %q: copy_files requires at least one file entry", c.Key)
			}
		case TypeSetupCommands:
			if len(c.SetupCommands) == 0 {
				return sxnerr.New(sxnerr.KindValidation, "rule %q: setup_commands requires at least one command", c.Key)
			}
		case TypeTemplate:
			if c.TemplateSrc == "" || c.TemplateDst == "" {
				return sxnerr.New(sxnerr.KindValidation, "rule %q: template requires source and destination", c.Key)
			}
		default:
			return sxnerr.New(sxnerr.KindValidation, "rule %q: unknown type %q", c.Key, c.Type)
		}
	}

	for _, c := range cfgs {
		for _, dep := range c.DependsOn {
			if !seen[dep] {
				return sxnerr.New(sxnerr.KindValidation, "rule %q depends on unknown rule %q", c.Key, dep)
			}
		}
	}

	if _, err := topologicalOrder(cfgs); err != nil {
		return err
	}
	return nil
}

// topologicalOrder runs Kahn's algorithm over cfgs, breaking ties
// alphabetically by key at every step so the same input always produces
// the same order. Returns CyclicDependencyError (KindValidation) if the
// graph has a cycle.
func topologicalOrder(cfgs []Config) ([]string, error) {
	indegree := make(map[string]int, len(cfgs))
	dependents := make(map[string][]string, len(cfgs))
	for _, c := range cfgs {
		if _, ok := indegree[c.Key]; !ok {
			indegree[c.Key] = 0
		}
		indegree[c.Key] += len(c.DependsOn)
		for _, dep := range c.DependsOn {
			dependents[dep] = append(dependents[dep], c.Key)
		}
	}
	for _, deps := range dependents {
		sort.Strings(deps)
	}

	var ready []string
	for key, n := range indegree {
		if n == 0 {
			ready = append(ready, key)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		key := ready[0]
		ready = ready[1:]
		order = append(order, key)

		for _, dep := range dependents[key] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	if len(order) != len(cfgs) {
		return nil, sxnerr.New(sxnerr.KindValidation, "cyclic dependency detected among rules")
	}
	return order, nil
}

func insertSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

