package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// RotatingWriter appends to a log file and rolls it over to numbered
// backups (shortrun.log.1, .2, ...) once a write would take it past
// maxSize. Safe for concurrent use.
type RotatingWriter struct {
	mu         sync.Mutex
	fs         afero.Fs
	file       afero.File
	path       string
	maxSize    int64
	maxBackups int
	written    int64
	closed     bool
}

// NewRotatingWriter opens path on fsys for appending, creating its
// directory. Non-positive limits fall back to the package defaults.
func NewRotatingWriter(fsys afero.Fs, path string, maxSizeMB, maxBackups int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = logFileMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = logFileMaxBackups
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rw := &RotatingWriter{
		fs:         fsys,
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// Write implements io.Writer. After a failed rotation the next write tries
// to reopen the file.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.closed {
		return 0, os.ErrClosed
	}
	if rw.file != nil && rw.written > 0 && rw.written+int64(len(p)) > rw.maxSize {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("log rotation: %w", err)
		}
	}
	if rw.file == nil {
		if err := rw.open(); err != nil {
			return 0, err
		}
	}

	n, err := rw.file.Write(p)
	rw.written += int64(n)
	return n, err
}

// Close closes the underlying file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.closed = true
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

func (rw *RotatingWriter) open() error {
	f, err := rw.fs.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.file = f
	rw.written = info.Size()
	return nil
}

// rotate shifts path.N to path.N+1, dropping the oldest, and reopens path
// empty. Rename does not overwrite on Windows, so each target is removed
// first.
func (rw *RotatingWriter) rotate() error {
	rw.file.Close()
	rw.file = nil

	for i := rw.maxBackups - 1; i >= 0; i-- {
		src, dst := rw.backupName(i), rw.backupName(i+1)
		if _, err := rw.fs.Stat(src); err != nil {
			continue
		}
		rw.fs.Remove(dst)
		if err := rw.fs.Rename(src, dst); err != nil {
			return err
		}
	}
	return rw.open()
}

func (rw *RotatingWriter) backupName(index int) string {
	if index == 0 {
		return rw.path
	}
	return fmt.Sprintf("%s.%d", rw.path, index)
}
