package config

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const testPath = "/appdata/ShortRun/config.json"

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg := NewStore(afero.NewMemMapFs(), testPath).Load()
	if *cfg != *Default() {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadCorruptFileReturnsDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testPath, []byte("{ not json"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := NewStore(fs, testPath).Load()
	if *cfg != *Default() {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), testPath)

	cfg := Default()
	cfg.Theme = "dark"
	cfg.LastTab = 2
	cfg.RunElevated = true
	cfg.ShowUninstallers = true
	if err := store.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := store.Load()
	if *got != *cfg {
		t.Fatalf("Load() = %+v, want %+v", got, cfg)
	}
}

func TestLoadPartialFileKeepsOtherDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testPath, []byte(`{"theme":"light"}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := NewStore(fs, testPath).Load()
	if cfg.Theme != "light" {
		t.Fatalf("Theme = %q, want light", cfg.Theme)
	}
	if cfg.Author != AppName || !cfg.AuditEnabled {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestSetPersistsImmediately(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), testPath)
	cfg := store.Load()

	if err := store.Set(cfg, "last_tab", "3"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(cfg, "run_elevated", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got := store.Load()
	if got.LastTab != 3 || !got.RunElevated {
		t.Fatalf("persisted config = %+v", got)
	}
}

func TestSetDoesNotPersistEnvOverrides(t *testing.T) {
	t.Setenv("SHORTRUN_AUTHOR", "FromEnv")
	fs := afero.NewMemMapFs()
	store := NewStore(fs, testPath)
	cfg := store.Load()
	if cfg.Author != "FromEnv" {
		t.Fatalf("Author = %q, want the environment override", cfg.Author)
	}

	if err := store.Set(cfg, "theme", "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if cfg.Theme != "dark" || cfg.Author != "FromEnv" {
		t.Fatalf("in-memory config = %+v", cfg)
	}

	raw, err := afero.ReadFile(fs, testPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "FromEnv") {
		t.Fatalf("environment override written to file: %s", raw)
	}
	onDisk := store.load(false)
	if onDisk.Theme != "dark" || onDisk.Author != AppName {
		t.Fatalf("file config = %+v", onDisk)
	}
}

func TestSetRejectsUnknownKeyAndBadValue(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewStore(fs, testPath)
	cfg := Default()

	if err := store.Set(cfg, "colour", "red"); err == nil {
		t.Fatal("expected unknown key error")
	}
	if err := store.Set(cfg, "last_tab", "many"); err == nil {
		t.Fatal("expected parse error")
	}
	if exists, _ := afero.Exists(fs, testPath); exists {
		t.Fatal("nothing should have been written")
	}
}

func TestGet(t *testing.T) {
	cfg := Default()
	got, err := cfg.Get("author")
	if err != nil || got != AppName {
		t.Fatalf("Get(author) = %q, %v", got, err)
	}
	if _, err := cfg.Get("nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
