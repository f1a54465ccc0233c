package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// staleLockAge bounds how long a crashed run can wedge the store. Runs are
// minutes at most, so anything older than this is a leftover lock file,
// provided its recorded holder is no longer running.
const staleLockAge = 15 * time.Minute

// runLock is a coarse exclusive lock shared by both drivers: an O_EXCL lock
// file next to the store for cross-process exclusion, plus an in-process
// held flag so two overlapping runs on the same store handle exclude each
// other too. A losing acquire gets ErrLocked and never observes held, so
// only the run that won can release.
type runLock struct {
	path string

	mu   sync.Mutex
	held bool
}

func (l *runLock) acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		// Another run on this same handle is still in flight.
		return ErrLocked
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + " " + time.Now().UTC().Format(time.RFC3339) + "\n")
			_ = f.Close()
			l.held = true
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("%w: acquire run lock: %v", ErrUnavailable, err)
		}
		st, serr := os.Stat(l.path)
		if serr == nil && time.Since(st.ModTime()) > staleLockAge && !lockHolderAlive(l.path) {
			// Leftover from a crashed run; break it once and retry.
			_ = os.Remove(l.path)
			continue
		}
		return ErrLocked
	}
	return ErrLocked
}

func (l *runLock) release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	return os.Remove(l.path)
}

// lockHolderAlive reads the pid recorded in the lock file and probes it.
// A lock whose writer is still running is never broken, however old the
// file's mtime is. An unreadable or malformed file counts as dead.
func lockHolderAlive(path string) bool {
	b, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
