package autostart

import (
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/shortrun/shortrun/internal/shortcut"
)

func newTestManager(written *[]shortcut.Shortcut) (*Manager, afero.Fs) {
	fs := afero.NewMemMapFs()
	m := &Manager{
		Fs:  fs,
		Dir: "/Users/me/Startup",
		WriteLink: func(path string, s shortcut.Shortcut) error {
			*written = append(*written, s)
			return afero.WriteFile(fs, path, []byte("lnk"), 0o644)
		},
	}
	return m, fs
}

func TestEnableDisable(t *testing.T) {
	var written []shortcut.Shortcut
	m, _ := newTestManager(&written)

	if m.Enabled() {
		t.Fatal("fresh manager should report disabled")
	}
	if err := m.Enable("/apps/shortrun.exe", "import plan.yaml"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !m.Enabled() {
		t.Fatal("Enabled() = false after Enable")
	}
	if len(written) != 1 {
		t.Fatalf("wrote %d shortcuts, want 1", len(written))
	}
	got := written[0]
	if got.TargetPath != "/apps/shortrun.exe" || got.Arguments != "import plan.yaml" || got.WorkingDirectory != "/apps" {
		t.Fatalf("unexpected shortcut %+v", got)
	}
	if m.Path() != "/Users/me/Startup/ShortRun.lnk" {
		t.Fatalf("Path() = %q", m.Path())
	}

	if err := m.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if m.Enabled() {
		t.Fatal("Enabled() = true after Disable")
	}
	if err := m.Disable(); err != nil {
		t.Fatalf("second Disable should be a no-op, got %v", err)
	}
}

func TestEnableRequiresTarget(t *testing.T) {
	var written []shortcut.Shortcut
	m, _ := newTestManager(&written)
	if err := m.Enable("", ""); err == nil {
		t.Fatal("expected error for empty target")
	}
	if len(written) != 0 {
		t.Fatal("nothing should be written")
	}
}

func TestEnablePropagatesWriteError(t *testing.T) {
	m := &Manager{
		Fs:        afero.NewMemMapFs(),
		Dir:       "/s",
		WriteLink: func(string, shortcut.Shortcut) error { return errors.New("com failed") },
	}
	if err := m.Enable("/apps/x.exe", ""); err == nil || err.Error() != "com failed" {
		t.Fatalf("Enable error = %v", err)
	}
	if m.Enabled() {
		t.Fatal("failed Enable must not report enabled")
	}
}
