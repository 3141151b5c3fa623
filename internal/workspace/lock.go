package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/apidb-dev/apidb/internal/core/domain"
)

// Lock is the workspace-wide mutual exclusion guard. Only one holder may
// be active per workspace at a time; a second acquisition attempt fails
// fast rather than blocking or queuing.
type Lock struct {
	path     string
	mu       sync.Mutex
	released bool
}

// Acquire takes the exclusive workspace lock by creating the marker file
// and recording the current process id into it. It fails with
// domain.ErrAlreadyLocked if the marker already exists, or
// domain.ErrLockIO for any other filesystem failure.
func Acquire(h Handle) (*Lock, error) {
	if err := h.EnsureDir(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLockIO, err)
	}

	path := h.LockPath()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyLocked, path)
		}
		return nil, fmt.Errorf("%w: acquiring %s: %v", domain.ErrLockIO, path, err)
	}

	_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
	cerr := f.Close()
	if werr != nil || cerr != nil {
		// Marker exists but could not be populated; remove it so the
		// workspace is not left permanently locked.
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: writing %s: %v", domain.ErrLockIO, path, errors.Join(werr, cerr))
	}

	return &Lock{path: path}, nil
}

// Release removes the lock marker. It is idempotent and safe to defer on
// every exit path; a missing marker is not an error.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: releasing %s: %v", domain.ErrLockIO, l.path, err)
	}
	return nil
}

// WithLock runs fn while holding the workspace lock, guaranteeing release
// on success, error, and panic.
func WithLock(h Handle, fn func() error) error {
	lock, err := Acquire(h)
	if err != nil {
		return err
	}
	defer lock.Release() //nolint:errcheck

	return fn()
}
