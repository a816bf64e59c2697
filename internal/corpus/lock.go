package corpus

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/docrag/docrag/internal/xerrors"
)

// Lock is a cross-process advisory lock guarding the on-disk vector
// index and chunk file pair against a concurrent rebuild while a
// process holds them open. It works across OS processes, not only
// goroutines.
type Lock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewLock creates a lock for the corpus directory. The lock file is
// created at <dir>/.corpus.lock.
func NewLock(dir string) *Lock {
	lockPath := filepath.Join(dir, ".corpus.lock")
	return &Lock{path: lockPath, flock: flock.New(lockPath)}
}

// RLock acquires a shared read lock, blocking until available. Query
// paths take this lock before loading and hold it until the retriever
// is closed, so a rebuild cannot swap the files out from under them.
func (l *Lock) RLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return xerrors.New(xerrors.ErrCodeCacheIO, "create lock directory", err)
	}
	if err := l.flock.RLock(); err != nil {
		return xerrors.New(xerrors.ErrCodeCacheIO, "acquire shared corpus lock", err)
	}
	l.locked = true
	return nil
}

// Lock acquires an exclusive lock, blocking until available. A rebuild
// holds this lock for the whole build, from loading the chunk file to
// writing the new index.
func (l *Lock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return xerrors.New(xerrors.ErrCodeCacheIO, "create lock directory", err)
	}
	if err := l.flock.Lock(); err != nil {
		return xerrors.New(xerrors.ErrCodeCacheIO, "acquire exclusive corpus lock", err)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call multiple times or when
// unlocked.
func (l *Lock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	return l.flock.Unlock()
}
