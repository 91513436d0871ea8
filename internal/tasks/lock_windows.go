//go:build windows

package tasks

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// Only the creating user may open the pipe.
const lockPipeSecurity = "D:P(A;;GA;;;OW)"

type pipeLocker struct {
	name string
}

// NewProcessLock returns a Locker backed by a first-instance named pipe:
// while one process holds the listener, ListenPipe fails for every other.
func NewProcessLock() Locker {
	return &pipeLocker{name: LockPipeName}
}

func (p *pipeLocker) Lock(ctx context.Context) (func(), error) {
	cfg := &winio.PipeConfig{SecurityDescriptor: lockPipeSecurity}
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		l, err := winio.ListenPipe(p.name, cfg)
		if err == nil {
			return func() { closeListener(l) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire scheduler lock %s: %w", p.name, ctx.Err())
		case <-ticker.C:
		}
	}
}

func closeListener(l net.Listener) {
	if err := l.Close(); err != nil {
		log.Debug("release scheduler lock", "error", err)
	}
}
