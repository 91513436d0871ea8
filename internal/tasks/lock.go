package tasks

import (
	"context"
	"time"
)

// Locker serialises the delete/create/patch sequence across processes.
// Lock blocks until the lock is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// LockPipeName is the named pipe used as the machine-wide lock on Windows.
const LockPipeName = `\\.\pipe\ShortRun.scheduler`

const lockRetryInterval = 50 * time.Millisecond

type noopLocker struct{}

func (noopLocker) Lock(context.Context) (func(), error) { return func() {}, nil }

// NoLock returns a Locker that never blocks. Tests and single-process
// callers use it.
func NoLock() Locker { return noopLocker{} }
