package execx

import (
	"context"
	"testing"
	"time"
)

func TestExecuteRejectsUnknownCommand(t *testing.T) {
	e := New()
	_, err := e.Execute(context.Background(), []string{"rm", "-rf", "/"}, Opts{})
	if err == nil {
		t.Fatal("Execute() expected error for non-allow-listed command")
	}
}

func TestExecuteRejectsEmptyArgv(t *testing.T) {
	e := New()
	_, err := e.Execute(context.Background(), nil, Opts{})
	if err == nil {
		t.Fatal("Execute() expected error for empty argv")
	}
}

func TestExecuteAllowExtendsAllowlist(t *testing.T) {
	e := New()
	e.Allow("true")
	res, err := e.Execute(context.Background(), []string{"true"}, Opts{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success || res.ExitCode != 0 {
		t.Errorf("Execute(true) = %+v, want success", res)
	}
}

func TestExecuteNonzeroExitIsNotError(t *testing.T) {
	e := New()
	e.Allow("false")
	res, err := e.Execute(context.Background(), []string{"false"}, Opts{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success {
		t.Error("Execute(false) reported success")
	}
	if res.ExitCode == 0 {
		t.Error("Execute(false) reported exit code 0")
	}
}

func TestExecuteTimeout(t *testing.T) {
	e := New()
	e.Allow("sleep")
	res, err := e.Execute(context.Background(), []string{"sleep", "5"}, Opts{Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.TimedOut {
		t.Error("Execute(sleep) expected TimedOut=true")
	}
	if res.Success {
		t.Error("Execute(sleep) expected Success=false after timeout")
	}
}

func TestExecuteCapturesStdout(t *testing.T) {
	e := New()
	e.Allow("echo")
	res, err := e.Execute(context.Background(), []string{"echo", "hello"}, Opts{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("Execute(echo) stdout = %q, want %q", res.Stdout, "hello\n")
	}
}

func TestExecuteWorkingDirectoryConfinement(t *testing.T) {
	root := t.TempDir()
	e := New()
	e.Allow("pwd")
	_, err := e.Execute(context.Background(), []string{"pwd"}, Opts{Root: root, Dir: "../../etc"})
	if err == nil {
		t.Fatal("Execute() expected error for Dir escaping Root")
	}
}

func TestExecuteOutputTruncation(t *testing.T) {
	e := New()
	e.Allow("yes")
	res, err := e.Execute(context.Background(), []string{"yes"}, Opts{Timeout: 200 * time.Millisecond, MaxOutputBytes: 1024})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Truncated {
		t.Error("Execute(yes) expected Truncated=true")
	}
	if len(res.Stdout) > 1024 {
		t.Errorf("Execute(yes) stdout len = %d, want <= 1024", len(res.Stdout))
	}
}
