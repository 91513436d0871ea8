// Package audit keeps a hash-chained JSONL journal of every change shortrun
// makes to the registry, the task scheduler, or its own settings.
package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/shortrun/shortrun/internal/config"
	"github.com/shortrun/shortrun/internal/logging"
)

var log = logging.L("audit")

// Event types.
const (
	EventAliasAdded   = "alias_added"
	EventAliasUpdated = "alias_updated"
	EventAliasRemoved = "alias_removed"
	EventAliasAdmin   = "alias_run_as_admin"
	EventTaskCreated  = "task_created"
	EventTaskDeleted  = "task_deleted"
	EventTaskRenamed  = "task_renamed"
	EventTaskEnabled  = "task_enabled"
	EventTaskDisabled = "task_disabled"
	EventConfigChange = "config_change"
	EventAutostart    = "autostart_change"
	EventPlanApplied  = "plan_applied"
	EventLogRotated   = "log_rotated"
)

const (
	genesisHash        = "genesis"
	brokenChainHash    = "chain-broken"
	defaultFileName    = "audit.jsonl"
	defaultMaxSizeMB   = 5
	defaultMaxBackups  = 3
	maxTailLineLength  = 1 << 20
	journalPermissions = 0600
)

// criticalEvents are synced to disk before Log returns.
var criticalEvents = map[string]bool{
	EventAliasRemoved: true,
	EventTaskDeleted:  true,
	EventConfigChange: true,
	EventPlanApplied:  true,
}

// Entry is one journal record. Subject is the alias or task the event is
// about.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"eventType"`
	Subject   string         `json:"subject,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// Logger appends entries to {dir}/audit.jsonl. Each entry carries the hash
// of the one before it; on rotation the new file opens with a sentinel that
// links back to the last entry of the old one. A nil *Logger discards
// everything.
type Logger struct {
	mu         sync.Mutex
	fs         afero.Fs
	file       afero.File
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
	prevHash   string
	dropped    atomic.Int64
}

// Open returns the journal for cfg, or nil when auditing is switched off or
// the journal cannot be opened. Failures are logged, never returned: a
// missing journal must not block the operation being journaled.
func Open(cfg *config.Config) *Logger {
	if cfg == nil || !cfg.AuditEnabled {
		return nil
	}
	l, err := NewLogger(afero.NewOsFs(), config.GetDataDir())
	if err != nil {
		log.Warn("audit journal unavailable", logging.KeyError, err.Error())
		return nil
	}
	return l
}

// NewLogger opens {dir}/audit.jsonl on fsys and resumes the hash chain from
// its last entry.
func NewLogger(fsys afero.Fs, dir string) (*Logger, error) {
	if err := fsys.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	l := &Logger{
		fs:         fsys,
		filePath:   filepath.Join(dir, defaultFileName),
		maxSize:    defaultMaxSizeMB * 1024 * 1024,
		maxBackups: defaultMaxBackups,
		prevHash:   genesisHash,
	}
	if last, err := lastEntry(fsys, l.filePath); err == nil && last != nil {
		l.prevHash = last.EntryHash
	}
	if err := l.openFile(); err != nil {
		return nil, err
	}
	log.Debug("audit journal opened", "path", l.filePath)
	return l, nil
}

// Path is the active journal file.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// Log appends one entry. The chain only advances after a successful write,
// so a failed entry leaves the next one linked to the same predecessor.
func (l *Logger) Log(eventType, subject string, details map[string]any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		Subject:   subject,
		Details:   details,
		PrevHash:  l.prevHash,
	}
	data, err := seal(&entry)
	if err != nil {
		log.Error("audit entry encode failed", logging.KeyError, err.Error(), "eventType", eventType)
		l.dropped.Add(1)
		return
	}

	if l.written+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			log.Error("audit rotation failed", logging.KeyError, err.Error())
			l.dropped.Add(1)
			return
		}
		// The sentinel moved the chain head; relink and reseal.
		entry.PrevHash = l.prevHash
		if data, err = seal(&entry); err != nil {
			l.dropped.Add(1)
			return
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		log.Error("audit write failed", logging.KeyError, err.Error(), "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	l.written += int64(n)
	l.prevHash = entry.EntryHash

	if criticalEvents[eventType] {
		if err := l.file.Sync(); err != nil {
			log.Warn("audit fsync failed", logging.KeyError, err.Error(), "eventType", eventType)
		}
	}
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// DroppedCount returns how many entries failed to write, or -1 for a nil
// logger.
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// Verify re-hashes every entry in the journal at path and checks that each
// links to its predecessor. It returns the number of entries read; the
// error names the first broken line.
func Verify(fsys afero.Fs, path string) (int, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxTailLineLength)
	var (
		prev  string
		count int
	)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		count++
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return count, fmt.Errorf("line %d: %w", count, err)
		}
		want, err := computeHash(e)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", count, err)
		}
		if want != e.EntryHash {
			return count, fmt.Errorf("line %d: entry hash mismatch", count)
		}
		// The first entry of a rotated file links into the previous file.
		if count > 1 && e.PrevHash != prev {
			return count, fmt.Errorf("line %d: chain broken", count)
		}
		prev = e.EntryHash
	}
	return count, sc.Err()
}

// seal fills in EntryHash and returns the newline-terminated JSON line.
func seal(e *Entry) ([]byte, error) {
	h, err := computeHash(*e)
	if err != nil {
		return nil, err
	}
	e.EntryHash = h
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// computeHash length-prefixes every field so no two field splits can
// produce the same input.
func computeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.EventType, entry.Subject, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := json.Marshal(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// lastEntry decodes the final line of the journal, or returns nil when the
// file is missing or empty.
func lastEntry(fsys afero.Fs, path string) (*Entry, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var last []byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxTailLineLength)
	for sc.Scan() {
		if line := bytes.TrimSpace(sc.Bytes()); len(line) > 0 {
			last = append(last[:0], line...)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal(last, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (l *Logger) openFile() error {
	f, err := l.fs.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, journalPermissions)
	if err != nil {
		return fmt.Errorf("open audit journal: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit journal: %w", err)
	}
	l.file = f
	l.written = info.Size()
	return nil
}

func (l *Logger) rotate() error {
	prev := l.prevHash
	if l.file != nil {
		l.file.Close()
	}

	// .N-1 -> .N, oldest dropped.
	for i := l.maxBackups; i >= 2; i-- {
		src, dst := l.backupName(i-1), l.backupName(i)
		if i == l.maxBackups {
			if err := l.fs.Remove(dst); err != nil && !os.IsNotExist(err) {
				log.Warn("audit rotation: remove oldest backup", "path", dst, logging.KeyError, err.Error())
			}
		}
		if err := l.fs.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			log.Warn("audit rotation: rename backup", "src", src, "dst", dst, logging.KeyError, err.Error())
		}
	}
	if err := l.fs.Rename(l.filePath, l.backupName(1)); err != nil && !os.IsNotExist(err) {
		log.Warn("audit rotation: rename journal", logging.KeyError, err.Error())
	}
	if err := l.openFile(); err != nil {
		return err
	}

	sentinel := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		EventType: EventLogRotated,
		PrevHash:  prev,
		Details:   map[string]any{"previousFile": l.backupName(1)},
	}
	data, err := seal(&sentinel)
	if err == nil {
		var n int
		if n, err = l.file.Write(data); err == nil {
			l.written += int64(n)
			l.prevHash = sentinel.EntryHash
			return nil
		}
	}
	// The file rotated but the link is lost.
	log.Error("audit rotation sentinel failed, hash chain broken", logging.KeyError, err.Error())
	l.dropped.Add(1)
	l.prevHash = brokenChainHash
	return nil
}

func (l *Logger) backupName(index int) string {
	if index == 0 {
		return l.filePath
	}
	return fmt.Sprintf("%s.%d", l.filePath, index)
}
