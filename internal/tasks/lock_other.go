//go:build !windows

package tasks

// NewProcessLock has no cross-process primitive off Windows; the scheduler
// tool only exists there.
func NewProcessLock() Locker {
	return noopLocker{}
}
