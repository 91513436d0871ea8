// Package autostart manages the ShortRun shortcut in the current user's
// Startup folder.
package autostart

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/config"
	"github.com/shortrun/shortrun/internal/logging"
	"github.com/shortrun/shortrun/internal/shortcut"
)

var log = logging.L("autostart")

// LinkName is the file created in the Startup folder.
const LinkName = config.AppName + ".lnk"

// Manager toggles the Startup shortcut. Zero fields pick the real
// filesystem, the user's Startup folder and shortcut.Write.
type Manager struct {
	Fs        afero.Fs
	Dir       string
	WriteLink func(path string, s shortcut.Shortcut) error
	Audit     *audit.Logger
}

// StartupDir is %APPDATA%\Microsoft\Windows\Start Menu\Programs\Startup.
func StartupDir() string {
	base := os.Getenv("APPDATA")
	if base == "" {
		base, _ = os.UserHomeDir()
	}
	return filepath.Join(base, `Microsoft\Windows\Start Menu\Programs\Startup`)
}

func (m *Manager) fs() afero.Fs {
	if m.Fs == nil {
		return afero.NewOsFs()
	}
	return m.Fs
}

// Path is the full path of the shortcut.
func (m *Manager) Path() string {
	dir := m.Dir
	if dir == "" {
		dir = StartupDir()
	}
	return filepath.Join(dir, LinkName)
}

// Enabled reports whether the shortcut exists.
func (m *Manager) Enabled() bool {
	info, err := m.fs().Stat(m.Path())
	return err == nil && !info.IsDir()
}

// Enable writes the shortcut to launch target with args at logon.
func (m *Manager) Enable(target, args string) error {
	if target == "" {
		return errors.New("autostart target is required")
	}
	dir := filepath.Dir(m.Path())
	if err := m.fs().MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create startup dir: %w", err)
	}
	write := m.WriteLink
	if write == nil {
		write = shortcut.Write
	}
	err := write(m.Path(), shortcut.Shortcut{
		TargetPath:       target,
		Arguments:        args,
		WorkingDirectory: filepath.Dir(target),
		Description:      config.AppName,
	})
	if err != nil {
		return err
	}
	m.Audit.Log(audit.EventAutostart, LinkName, map[string]any{"enabled": true, "target": target, "args": args})
	log.Info("autostart enabled", "path", m.Path())
	return nil
}

// Disable removes the shortcut. A missing shortcut is not an error.
func (m *Manager) Disable() error {
	if err := m.fs().Remove(m.Path()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove startup shortcut: %w", err)
	}
	m.Audit.Log(audit.EventAutostart, LinkName, map[string]any{"enabled": false})
	log.Info("autostart disabled", "path", m.Path())
	return nil
}
