package detector

// DefaultRule is a minimal, detector-owned view of a rule: just enough
// to hand to the rules engine's config loader. It mirrors the shape of
// rules.RuleConfig without importing that package, so the detector has
// no dependency on the engine — the orchestrator merges these in.
type DefaultRule struct {
	Key          string
	Type         string // "copy_files" | "setup_commands"
	Patterns     []string // for copy_files
	Commands     []DefaultCommand // for setup_commands
	DependsOn    []string
}

// DefaultCommand is one setup_commands entry with its guard condition.
type DefaultCommand struct {
	Args      []string
	Condition string
}

// SuggestDefaultRules returns a reasonable starter rule set for a
// detected project type (e.g. a Rails app wants secrets copied, bundle
// installed, then the database set up if it doesn't already exist).
func SuggestDefaultRules(t ProjectType) []DefaultRule {
	switch t {
	case TypeRails:
		return []DefaultRule{
			{
				Key:      "copy_secrets",
				Type:     "copy_files",
				Patterns: []string{"config/master.key", "config/credentials/*.key", ".env*"},
			},
			{
				Key:       "bundle_install",
				Type:      "setup_commands",
				DependsOn: []string{"copy_secrets"},
				Commands: []DefaultCommand{
					{Args: []string{"bundle", "install"}, Condition: "always"},
				},
			},
			{
				Key:       "db_setup",
				Type:      "setup_commands",
				DependsOn: []string{"bundle_install"},
				Commands: []DefaultCommand{
					{Args: []string{"bin/rails", "db:create"}, Condition: "db_not_exists"},
					{Args: []string{"bin/rails", "db:migrate"}, Condition: "always"},
				},
			},
		}
	case TypeRuby:
		return []DefaultRule{
			{
				Key:  "bundle_install",
				Type: "setup_commands",
				Commands: []DefaultCommand{
					{Args: []string{"bundle", "install"}, Condition: "file_exists:Gemfile.lock"},
				},
			},
		}
	case TypeNextJS, TypeReact, TypeTypeScript, TypeJavaScript:
		return []DefaultRule{
			{
				Key:      "copy_env",
				Type:     "copy_files",
				Patterns: []string{".env*"},
			},
			{
				Key:       "install_deps",
				Type:      "setup_commands",
				DependsOn: []string{"copy_env"},
				Commands: []DefaultCommand{
					{Args: []string{"npm", "install"}, Condition: "always"},
				},
			},
		}
	default:
		return nil
	}
}
