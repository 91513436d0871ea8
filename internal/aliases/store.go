// Package aliases manages run-dialog aliases: App Paths entries under the
// current user's registry hive that map a short name to an executable.
//
// Only entries carrying the ShortRun marker value are visible or mutable.
// Entries created by installers or by hand are left alone.
package aliases

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/logging"
)

var log = logging.L("aliases")

const (
	// AppPathsKey is relative to HKEY_CURRENT_USER.
	AppPathsKey = `Software\Microsoft\Windows\CurrentVersion\App Paths`

	MarkerName  = "ShortRun"
	MarkerValue = "1"

	valuePath       = "Path"
	valueRunAsAdmin = "RunAsAdmin"
	subkeySuffix    = ".exe"
)

var (
	ErrInvalidAlias  = errors.New("alias must be 1-64 letters, digits, hyphens or underscores")
	ErrAliasExists   = errors.New("alias already exists")
	ErrAliasNotFound = errors.New("alias not found")
	ErrNotOwned      = errors.New("alias was not created by shortrun")
)

var aliasRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Entry is one alias this tool owns.
type Entry struct {
	Alias      string `json:"alias" yaml:"alias"`
	ExePath    string `json:"exe_path" yaml:"exe"`
	RunAsAdmin bool   `json:"run_as_admin" yaml:"run_as_admin,omitempty"`
}

// ValidateAlias checks the alias character set and length.
func ValidateAlias(alias string) error {
	if !aliasRe.MatchString(alias) {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	return nil
}

// Options configures a Store. Zero values select the real filesystem and no
// journal.
type Options struct {
	Fs    afero.Fs
	Audit *audit.Logger
}

// Store reads and writes aliases through a Backend.
type Store struct {
	mu      sync.Mutex
	backend Backend
	fs      afero.Fs
	audit   *audit.Logger
}

func NewStore(backend Backend, opts Options) *Store {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	return &Store{backend: backend, fs: opts.Fs, audit: opts.Audit}
}

// List returns every owned alias sorted by name. Keys that cannot be read
// are skipped.
func (s *Store) List() ([]Entry, error) {
	names, err := s.backend.Keys()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, name := range names {
		v, err := s.backend.Read(name)
		if err != nil {
			log.Debug("skipping unreadable App Paths key", "key", name, logging.KeyError, err.Error())
			continue
		}
		if e, ok := entryFrom(aliasOf(name), v); ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Alias) < strings.ToLower(out[j].Alias)
	})
	return out, nil
}

// Get returns the owned entry for alias, or ErrAliasNotFound when it is
// missing or foreign.
func (s *Store) Get(alias string) (*Entry, error) {
	v, err := s.backend.Read(subkeyOf(alias))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAliasNotFound, alias)
		}
		return nil, err
	}
	e, ok := entryFrom(alias, v)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAliasNotFound, alias)
	}
	return &e, nil
}

// Add registers alias for exe. Any existing key of that name, owned or not,
// is an ErrAliasExists conflict unless overwrite is set. The run-as-admin
// flag starts cleared.
func (s *Store) Add(alias, exe string, overwrite bool) (*Entry, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}
	abs, err := s.resolveExe(exe)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !overwrite {
		if err := s.ensureFree(alias); err != nil {
			return nil, err
		}
	}
	if err := s.write(alias, abs, ptr(false)); err != nil {
		return nil, err
	}
	s.audit.Log(audit.EventAliasAdded, alias, map[string]any{"exe": abs, "overwrite": overwrite})
	log.Info("alias added", logging.KeyAlias, alias, "exe", abs)
	return &Entry{Alias: alias, ExePath: abs}, nil
}

// Update points oldAlias at exe and, when newAlias differs, moves it to the
// new name. In-place updates keep the run-as-admin flag; a rename starts
// the new entry with it cleared.
func (s *Store) Update(oldAlias, newAlias, exe string, overwrite bool) (*Entry, error) {
	if err := ValidateAlias(newAlias); err != nil {
		return nil, err
	}
	abs, err := s.resolveExe(exe)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Get(oldAlias)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(oldAlias, newAlias) {
		if err := s.write(oldAlias, abs, nil); err != nil {
			return nil, err
		}
		s.audit.Log(audit.EventAliasUpdated, oldAlias, map[string]any{"exe": abs})
		return &Entry{Alias: oldAlias, ExePath: abs, RunAsAdmin: current.RunAsAdmin}, nil
	}

	if !overwrite {
		if err := s.ensureFree(newAlias); err != nil {
			return nil, err
		}
	}
	if err := s.write(newAlias, abs, ptr(false)); err != nil {
		return nil, err
	}
	if err := s.remove(oldAlias); err != nil {
		return nil, fmt.Errorf("created %s but could not remove %s: %w", newAlias, oldAlias, err)
	}
	s.audit.Log(audit.EventAliasUpdated, newAlias, map[string]any{"from": oldAlias, "exe": abs})
	log.Info("alias renamed", logging.KeyAlias, newAlias, "from", oldAlias)
	return &Entry{Alias: newAlias, ExePath: abs}, nil
}

// Remove deletes alias. A missing alias is not an error; a foreign one is
// ErrNotOwned. Scheduled tasks for the alias are untouched.
func (s *Store) Remove(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(alias)
}

// SetRunAsAdmin sets the flag on an owned alias.
func (s *Store) SetRunAsAdmin(alias string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Get(alias); err != nil {
		return err
	}
	if err := s.backend.Write(subkeyOf(alias), &Values{DWords: map[string]uint32{valueRunAsAdmin: boolDWord(on)}}); err != nil {
		return err
	}
	s.audit.Log(audit.EventAliasAdmin, alias, map[string]any{"run_as_admin": on})
	return nil
}

func (s *Store) remove(alias string) error {
	name := subkeyOf(alias)
	v, err := s.backend.Read(name)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil
		}
		return err
	}
	if !owned(v) {
		return fmt.Errorf("%w: %s", ErrNotOwned, alias)
	}
	if err := s.backend.Delete(name); err != nil && !errors.Is(err, ErrKeyNotFound) {
		return err
	}
	s.audit.Log(audit.EventAliasRemoved, alias, nil)
	log.Info("alias removed", logging.KeyAlias, alias)
	return nil
}

func (s *Store) ensureFree(alias string) error {
	_, err := s.backend.Read(subkeyOf(alias))
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrAliasExists, alias)
	case errors.Is(err, ErrKeyNotFound):
		return nil
	default:
		return err
	}
}

// write sets the default value, Path and marker. A nil runAsAdmin leaves the
// existing flag alone.
func (s *Store) write(alias, exe string, runAsAdmin *bool) error {
	v := &Values{Strings: map[string]string{
		"":         exe,
		valuePath:  filepath.Dir(exe),
		MarkerName: MarkerValue,
	}}
	if runAsAdmin != nil {
		v.DWords = map[string]uint32{valueRunAsAdmin: boolDWord(*runAsAdmin)}
	}
	return s.backend.Write(subkeyOf(alias), v)
}

// resolveExe makes exe absolute and checks that it names a regular file.
func (s *Store) resolveExe(exe string) (string, error) {
	exe = strings.Trim(strings.TrimSpace(exe), `"`)
	if exe == "" {
		return "", fmt.Errorf("executable path is empty")
	}
	abs, err := filepath.Abs(exe)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", exe, err)
	}
	info, err := s.fs.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("executable not found: %s: %w", abs, fs.ErrNotExist)
	}
	if info.IsDir() {
		return "", fmt.Errorf("executable is a directory: %s", abs)
	}
	return abs, nil
}

func entryFrom(alias string, v *Values) (Entry, bool) {
	if !owned(v) {
		return Entry{}, false
	}
	exe, ok := v.str("")
	if !ok || exe == "" {
		return Entry{}, false
	}
	return Entry{Alias: alias, ExePath: exe, RunAsAdmin: runAsAdmin(v)}, true
}

func owned(v *Values) bool {
	m, ok := v.str(MarkerName)
	return ok && m == MarkerValue
}

// runAsAdmin accepts the flag as a DWORD or as a string.
func runAsAdmin(v *Values) bool {
	if d, ok := v.DWords[valueRunAsAdmin]; ok {
		return d != 0
	}
	if s, ok := v.str(valueRunAsAdmin); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes":
			return true
		}
	}
	return false
}

func subkeyOf(alias string) string {
	return alias + subkeySuffix
}

func aliasOf(subkey string) string {
	if len(subkey) > len(subkeySuffix) && strings.EqualFold(subkey[len(subkey)-len(subkeySuffix):], subkeySuffix) {
		return subkey[:len(subkey)-len(subkeySuffix)]
	}
	return subkey
}

func boolDWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func ptr[T any](v T) *T { return &v }
