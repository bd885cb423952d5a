package rules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sxn-dev/sxn/internal/execx"
)

// evaluateCondition decides whether a setup_commands entry should run.
// sessionDir is the directory the file_exists/file_missing checks are
// relative to; dbPresent lets
// callers report whether the project's database already exists (the
// detector/orchestrator layer owns what "the database" means for a
// given project type) for db_not_exists.
func evaluateCondition(cond string, sessionDir string, dbPresent bool) bool {
	switch {
	case cond == "" || cond == string(ConditionAlways):
		return true
	case cond == string(ConditionDBNotExists):
		return !dbPresent
	case strings.HasPrefix(cond, conditionFileExists):
		rel := strings.TrimPrefix(cond, conditionFileExists)
		return fileExistsIn(sessionDir, rel)
	case strings.HasPrefix(cond, conditionFileMissing):
		rel := strings.TrimPrefix(cond, conditionFileMissing)
		return !fileExistsIn(sessionDir, rel)
	case cond == string(ConditionFileNotExists):
		// bare, argument-less form: nothing to check against, so it
		// never blocks. See DESIGN.md for this reading of the condition.
		return true
	default:
		return true
	}
}

func fileExistsIn(dir, rel string) bool {
	_, err := os.Stat(filepath.Join(dir, rel))
	return err == nil
}

// CommandRecord is the change-log entry setup_commands rules append:
// there is nothing to roll back (a command already ran cannot be
// undone generically), so it exists purely as an audit trail.
type CommandRecord struct {
	Args     []string
	Skipped  bool
	ExitCode int
	Stdout   string
	Stderr   string
}

func runSetupCommands(ctx context.Context, executor *execx.Executor, sessionDir string, dbPresent bool, commands []CommandEntry) ([]CommandRecord, error) {
	var log []CommandRecord
	for _, cmd := range commands {
		if !evaluateCondition(cmd.Condition, sessionDir, dbPresent) {
			log = append(log, CommandRecord{Args: cmd.Args, Skipped: true})
			continue
		}

		dir := sessionDir
		if cmd.WorkingDirectory != "" {
			dir = filepath.Join(sessionDir, cmd.WorkingDirectory)
		}
		var timeout time.Duration
		if cmd.TimeoutSeconds > 0 {
			timeout = time.Duration(cmd.TimeoutSeconds) * time.Second
		}

		res, err := executor.Execute(ctx, cmd.Args, execx.Opts{
			Dir:     dir,
			Root:    sessionDir,
			Env:     cmd.Env,
			Timeout: timeout,
		})
		if err != nil {
			return log, err
		}
		record := CommandRecord{Args: cmd.Args, ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}
		log = append(log, record)
		if !res.Success && !cmd.Optional {
			return log, errCommandFailed(cmd.Args, res.ExitCode, res.Stderr)
		}
	}
	return log, nil
}
