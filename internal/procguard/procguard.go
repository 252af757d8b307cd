// Package procguard enforces the single-synchronizer-per-index rule
// with a cross-platform file lock. Two processes synchronizing the same
// index directory would corrupt the position mapping.
package procguard

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	nderr "github.com/notedex/notedex/internal/errors"
)

// lockFileName is the lock artifact inside the index directory.
const lockFileName = ".notedex.lock"

// Lock is an exclusive lock on an index directory.
type Lock struct {
	flock  *flock.Flock
	locked bool
}

// Acquire takes the exclusive lock on dir without blocking. If another
// notedex process holds it, a fatal ErrCodeLockHeld is returned.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	fl := flock.New(filepath.Join(dir, lockFileName))
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !acquired {
		return nil, nderr.New(nderr.ErrCodeLockHeld,
			fmt.Sprintf("another notedex process is synchronizing %s", dir), nil).
			WithSuggestion("stop the other notedex instance or use a different index directory")
	}

	return &Lock{flock: fl, locked: true}, nil
}

// Release drops the lock. Safe to call multiple times.
func (l *Lock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	return l.flock.Unlock()
}
