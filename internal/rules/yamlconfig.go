package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sxn-dev/sxn/internal/filecopier"
	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// fileDoc is the top-level shape of a rules.yaml workspace file: a map
// of rule name to its declaration.
type fileDoc struct {
	Rules map[string]ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	Type         string       `yaml:"type"`
	Dependencies []string     `yaml:"dependencies"`
	Config       ruleConfigDoc `yaml:"config"`
}

type ruleConfigDoc struct {
	Files             []fileEntryDoc    `yaml:"files"`
	Commands          []commandEntryDoc `yaml:"commands"`
	ContinueOnFailure bool              `yaml:"continue_on_failure"`
	Templates         []templateDoc     `yaml:"templates"`
}

type fileEntryDoc struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Strategy    string `yaml:"strategy"`
	Permissions string `yaml:"permissions"`
	Encrypt     bool   `yaml:"encrypt"`
	Required    *bool  `yaml:"required"`
}

type commandEntryDoc struct {
	Command          []string          `yaml:"command"`
	Env              map[string]string `yaml:"env"`
	Timeout          int               `yaml:"timeout"`
	Condition        string            `yaml:"condition"`
	WorkingDirectory string            `yaml:"working_directory"`
	Required         *bool             `yaml:"required"`
}

type templateDoc struct {
	Source      string         `yaml:"source"`
	Destination string         `yaml:"destination"`
	Variables   map[string]any `yaml:"variables"`
	Engine      string         `yaml:"engine"`
	Required    *bool          `yaml:"required"`
	Overwrite   bool           `yaml:"overwrite"`
}

// LoadYAMLFile reads and parses a rules.yaml workspace file at path.
func LoadYAMLFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path supplied by the caller, already under a registered project
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "read rule config %q", path)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a rules.yaml document's bytes into Config entries,
// sorted by key so callers see deterministic ordering before Apply's own
// topological sort takes over. Multiple templates declared under one
// rule's "templates" list are expanded into separate Config entries
// sharing that rule's key as a prefix, since a Config carries at most
// one template render.
func ParseYAML(data []byte) ([]Config, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindValidation, err, "parse rule config")
	}

	var cfgs []Config
	for name, rule := range doc.Rules {
		expanded, err := expandRuleDoc(name, rule)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, expanded...)
	}
	if err := Validate(cfgs); err != nil {
		return nil, err
	}
	return cfgs, nil
}

func expandRuleDoc(name string, rule ruleDoc) ([]Config, error) {
	base := Config{
		Key:               name,
		DependsOn:         rule.Dependencies,
		ContinueOnFailure: rule.Config.ContinueOnFailure,
	}

	switch Type(rule.Type) {
	case TypeCopyFiles:
		cfg := base
		cfg.Type = TypeCopyFiles
		for _, f := range rule.Config.Files {
			cfg.CopyFiles = append(cfg.CopyFiles, FileEntry{
				Source:      f.Source,
				Destination: f.Destination,
				Strategy:    filecopier.Strategy(f.Strategy),
				Permissions: f.Permissions,
				Encrypt:     f.Encrypt,
				Required:    boolOr(f.Required, true),
			})
		}
		return []Config{cfg}, nil

	case TypeSetupCommands:
		cfg := base
		cfg.Type = TypeSetupCommands
		for _, c := range rule.Config.Commands {
			cfg.SetupCommands = append(cfg.SetupCommands, CommandEntry{
				Args:             c.Command,
				Env:              c.Env,
				TimeoutSeconds:   c.Timeout,
				WorkingDirectory: c.WorkingDirectory,
				Condition:        c.Condition,
				Optional:         !boolOr(c.Required, true),
			})
		}
		return []Config{cfg}, nil

	case TypeTemplate:
		if len(rule.Config.Templates) == 0 {
			return nil, sxnerr.New(sxnerr.KindValidation, "rule %q: template requires at least one entry", name)
		}
		cfgs := make([]Config, 0, len(rule.Config.Templates))
		for i, t := range rule.Config.Templates {
			if t.Engine != "" && t.Engine != "liquid" {
				return nil, sxnerr.New(sxnerr.KindValidation, "rule %q: unsupported template engine %q", name, t.Engine)
			}
			cfg := base
			cfg.Type = TypeTemplate
			cfg.Key = templateKey(name, i)
			cfg.TemplateSrc = t.Source
			cfg.TemplateDst = t.Destination
			cfg.TemplateVariables = t.Variables
			cfg.TemplateOverwrite = t.Overwrite
			cfgs = append(cfgs, cfg)
		}
		return cfgs, nil

	default:
		return nil, sxnerr.New(sxnerr.KindValidation, "rule %q: unknown type %q", name, rule.Type)
	}
}

// templateKey names the synthetic Config for the i-th template entry
// under a rule: the rule's own name for the first (so single-template
// rules, the common case, keep a predictable key), and a suffixed name
// for any additional entries.
func templateKey(name string, i int) string {
	if i == 0 {
		return name
	}
	return fmt.Sprintf("%s#%d", name, i)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
