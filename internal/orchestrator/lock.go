package orchestrator

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/sxn-dev/sxn/internal/sxnerr"
)

// sessionLock is a per-session advisory lock file at
// <sessionDir>/.sxn/apply.lock, held for the duration of one apply
// operation so two callers can't run rules against the same session
// concurrently.
type sessionLock struct {
	f *os.File
}

// acquireLock opens (creating if needed) the lock file under dir and
// takes a non-blocking exclusive flock. A session already being applied
// reports KindConflict rather than blocking the caller.
func acquireLock(dir string) (*sessionLock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "create lock directory")
	}
	path := dir + "/apply.lock"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "open lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, sxnerr.New(sxnerr.KindConflict, "session is locked by another apply in progress")
		}
		return nil, sxnerr.Wrap(sxnerr.KindStorage, err, "lock %s", path)
	}
	return &sessionLock{f: f}, nil
}

// release unlocks and closes the lock file. Best-effort: a failure here
// does not affect whatever apply() already did.
func (l *sessionLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}
	return nil
}
