package orchestrator

import (
	"path/filepath"

	"github.com/sxn-dev/sxn/internal/detector"
	"github.com/sxn-dev/sxn/internal/rules"
)

// mergeRules expands a detected project's suggested default rules into
// concrete rules.Config entries (globbing DefaultRule.Patterns against
// projectDir into FileEntry lists) and layers user-supplied overrides on
// top: an override whose Key matches a default entry's Key replaces it
// outright, and an override with a new Key is simply appended.
func mergeRules(projectDir string, detected []detector.DefaultRule, overrides []rules.Config) []rules.Config {
	merged := make(map[string]rules.Config, len(detected)+len(overrides))
	var order []string

	for _, d := range detected {
		cfg := expandDefaultRule(projectDir, d)
		merged[cfg.Key] = cfg
		order = append(order, cfg.Key)
	}
	for _, o := range overrides {
		if _, exists := merged[o.Key]; !exists {
			order = append(order, o.Key)
		}
		merged[o.Key] = o
	}

	out := make([]rules.Config, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}

func expandDefaultRule(projectDir string, d detector.DefaultRule) rules.Config {
	cfg := rules.Config{Key: d.Key, DependsOn: d.DependsOn}

	switch d.Type {
	case "copy_files":
		cfg.Type = rules.TypeCopyFiles
		for _, pattern := range d.Patterns {
			matches, _ := filepath.Glob(filepath.Join(projectDir, pattern))
			if len(matches) == 0 {
				// Nothing on disk matches yet (e.g. a fresh clone with no
				// .env written); keep the pattern itself as a literal,
				// optional entry so the rule still has something to try —
				// Copier skips it cleanly if it's still missing at apply
				// time.
				cfg.CopyFiles = append(cfg.CopyFiles, rules.FileEntry{Source: pattern, Destination: pattern, Required: false})
				continue
			}
			for _, m := range matches {
				rel, err := filepath.Rel(projectDir, m)
				if err != nil {
					continue
				}
				cfg.CopyFiles = append(cfg.CopyFiles, rules.FileEntry{
					Source:      rel,
					Destination: rel,
					Required:    false,
				})
			}
		}
	case "setup_commands":
		cfg.Type = rules.TypeSetupCommands
		for _, c := range d.Commands {
			cfg.SetupCommands = append(cfg.SetupCommands, rules.CommandEntry{Args: c.Args, Condition: c.Condition})
		}
	}
	return cfg
}
