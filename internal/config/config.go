// Package config loads sxn's process configuration from SXN_* environment
// variables, with built-in defaults for everything that isn't set.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

const (
	envSessionsFolder      = "SXN_SESSIONS_FOLDER"
	envMaxSessions         = "SXN_MAX_SESSIONS"
	envDBPath              = "SXN_DB_PATH"
	envDefaultParallelism  = "SXN_DEFAULT_MAX_PARALLELISM"
	envCommandTimeout      = "SXN_COMMAND_TIMEOUT_SECONDS"
	envAllowedCommands     = "SXN_ALLOWED_COMMANDS"
	envMasterKey           = "SXN_MASTER_KEY"
	envLogLevel            = "SXN_LOG_LEVEL"
)

// Config is the fully resolved process configuration.
type Config struct {
	SessionsFolder          string
	MaxSessions             int
	DBPath                  string
	DefaultMaxParallelism   int
	CommandTimeoutSeconds   int
	AllowedCommands         []string // empty means "use the executor's built-in defaults"
	MasterKey               []byte   // empty disables at-rest encryption support
	LogLevel                string
}

// defaults mirrors the values a fresh install runs with before any
// SXN_* variable is set.
func defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		SessionsFolder:        home + "/.sxn/sessions",
		MaxSessions:           50,
		DBPath:                home + "/.sxn/sxn.db",
		DefaultMaxParallelism: 4,
		CommandTimeoutSeconds: 60,
		LogLevel:              "info",
	}
}

// Load reads defaults() and applies every SXN_* override present in the
// environment.
func Load() (Config, error) {
	cfg := defaults()

	if v := os.Getenv(envSessionsFolder); v != "" {
		cfg.SessionsFolder = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envMaxSessions); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, sxnerr.New(sxnerr.KindValidation, "%s must be a positive integer, got %q", envMaxSessions, v)
		}
		cfg.MaxSessions = n
	}
	if v := os.Getenv(envDefaultParallelism); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, sxnerr.New(sxnerr.KindValidation, "%s must be a positive integer, got %q", envDefaultParallelism, v)
		}
		cfg.DefaultMaxParallelism = n
	}
	if v := os.Getenv(envCommandTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, sxnerr.New(sxnerr.KindValidation, "%s must be a positive integer, got %q", envCommandTimeout, v)
		}
		cfg.CommandTimeoutSeconds = n
	}
	if v := os.Getenv(envAllowedCommands); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.AllowedCommands = append(cfg.AllowedCommands, name)
			}
		}
	}
	if v := os.Getenv(envMasterKey); v != "" {
		cfg.MasterKey = []byte(v)
	}

	return cfg, nil
}
