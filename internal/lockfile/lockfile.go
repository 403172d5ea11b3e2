// Package lockfile provides the per-user single-instance guard shared by the
// supervisor tools. A second invocation while one instance holds the lock is
// expected to exit immediately and silently.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Guard holds a per-user advisory lock for the lifetime of one invocation.
type Guard struct {
	lock *flock.Flock
	path string
}

// Acquire tries to take the per-user lock for the named tool. It returns
// (guard, true, nil) on success and (nil, false, nil) when another instance
// already holds the lock. The lock never queues.
func Acquire(name string) (*Guard, bool, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d.lock", name, os.Getuid()))

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring instance lock %s: %w", path, err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Guard{lock: fl, path: path}, true, nil
}

// Path returns the lock file location.
func (g *Guard) Path() string { return g.path }

// Release drops the lock. The lock file itself is left in place; only the
// advisory lock matters.
func (g *Guard) Release() error {
	if err := g.lock.Unlock(); err != nil {
		return fmt.Errorf("releasing instance lock %s: %w", g.path, err)
	}
	return nil
}
