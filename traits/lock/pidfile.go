// Package lock keeps a single bot process running per working directory.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/multierr"
)

var ErrAlreadyRunning = errors.New("another instance is already running")

type PIDFile struct {
	path string
	once sync.Once
}

// Acquire creates the lock file with the current PID. A file left behind by a
// process that no longer exists is taken over.
func Acquire(path string) (*PIDFile, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write pid file: %w", multierr.Combine(werr, cerr))
			}
			return &PIDFile{path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create pid file: %w", err)
		}

		pid, alive := owner(path)
		if alive {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale pid file: %w", err)
		}
	}
	return nil, ErrAlreadyRunning
}

// Release removes the lock file. Safe to call more than once.
func (p *PIDFile) Release() error {
	var err error
	p.once.Do(func() {
		if rerr := os.Remove(p.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = rerr
		}
	})
	return err
}

func (p *PIDFile) Path() string { return p.path }

func owner(path string) (int, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if pid == os.Getpid() {
		return pid, true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	// signal 0 only checks existence
	err = proc.Signal(syscall.Signal(0))
	return pid, err == nil || errors.Is(err, syscall.EPERM)
}
