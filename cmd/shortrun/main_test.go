package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortrun/shortrun/internal/aliases"
	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/config"
	"github.com/shortrun/shortrun/internal/schtasks/schtaskstest"
	"github.com/shortrun/shortrun/internal/shortcut"
	"github.com/shortrun/shortrun/internal/tasks"
)

const (
	editor     = "/apps/editor/editor.exe"
	editorLink = "/links/Editor.lnk"
	cfgPath    = "/data/config.json"
)

type harness struct {
	a     *app
	fs    afero.Fs
	fake  *schtaskstest.Fake
	links map[string]shortcut.Shortcut
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, editor, []byte("MZ"), 0o755))

	h := &harness{fs: fsys, fake: schtaskstest.New(fsys), links: map[string]shortcut.Shortcut{}}
	h.a = &app{
		fs:         fsys,
		backend:    aliases.NewMemoryBackend(),
		runner:     h.fake,
		lock:       tasks.NoLock(),
		tempDir:    "/tmp",
		auditDir:   "/data",
		startupDir: "/startup",
		writeLink: func(path string, s shortcut.Shortcut) error {
			h.links[path] = s
			return afero.WriteFile(fsys, path, []byte("lnk"), 0o644)
		},
		resolveLnk: func(path string) (string, error) {
			if path == editorLink {
				return editor, nil
			}
			return "", errors.New("not a program shortcut")
		},
		executable: func() (string, error) { return "/apps/shortrun.exe", nil },
		// A Monday.
		now: func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) },
	}
	return h
}

// run executes one command line against a fresh command tree.
func (h *harness) run(args ...string) (stdout, stderr string, err error) {
	root := newRootCmd(h.a)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err = root.ExecuteContext(context.Background())
	h.a.teardown()
	return out.String(), errOut.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := h.run(args...)
	require.NoError(t, err, "shortrun %s\nstderr: %s", strings.Join(args, " "), errOut)
	return out
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "ShortRun v"+version+"\n", h.mustRun(t, "version"))
}

func TestAliasLifecycle(t *testing.T) {
	h := newHarness(t)

	assert.Contains(t, h.mustRun(t, "alias", "add", "ed", editor, "--admin"), "added ed")

	var list []aliases.Entry
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "alias", "list", "--json")), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "ed", list[0].Alias)
	assert.True(t, list[0].RunAsAdmin)

	h.mustRun(t, "alias", "admin", "ed", "off")
	h.mustRun(t, "alias", "update", "ed", editor, "--rename", "editor")
	out := h.mustRun(t, "alias", "list")
	assert.Contains(t, out, "editor")
	assert.NotContains(t, out, "[admin]")

	_, _, err := h.run("alias", "add", "editor", editor)
	assert.ErrorIs(t, err, aliases.ErrAliasExists)

	h.mustRun(t, "alias", "remove", "editor")
	assert.Equal(t, "no aliases\n", h.mustRun(t, "alias", "list"))
}

func TestAliasAddResolvesShortcut(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editorLink)
	assert.Contains(t, h.mustRun(t, "alias", "list"), "editor.exe")

	_, _, err := h.run("alias", "add", "other", "/links/Readme.lnk")
	assert.Error(t, err)
}

func TestAliasAdminRejectsBadState(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)
	_, _, err := h.run("alias", "admin", "ed", "maybe")
	assert.Error(t, err)
}

func TestScheduleDaily(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)

	out := h.mustRun(t, "schedule", "daily", "ed", "--time", "9:00")
	assert.Contains(t, out, "created ShortRun_ed_DAILY_09-00")
	assert.Equal(t, []string{"ShortRun_ed_DAILY_09-00"}, h.fake.Names())
}

func TestSchedulePreviewCreatesNothing(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)

	out := h.mustRun(t, "schedule", "daily", "ed", "--time", "09:00", "--preview", "3")
	assert.Equal(t, "Mon 2026-03-02 09:00\nTue 2026-03-03 09:00\nWed 2026-03-04 09:00\n", out)
	assert.Zero(t, h.fake.CallCount())
}

func TestScheduleNeedsAliasOrExe(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("schedule", "daily", "ghost", "--time", "09:00")
	assert.ErrorIs(t, err, aliases.ErrAliasNotFound)

	out := h.mustRun(t, "schedule", "daily", "ghost", "--time", "09:00", "--exe", editor)
	assert.Contains(t, out, "created ShortRun_ghost_DAILY_09-00")
}

func TestScheduleInvalidTriggerRunsNothing(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)

	_, _, err := h.run("schedule", "daily", "ed", "--time", "25:00")
	var verr *tasks.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Zero(t, h.fake.CallCount())
}

func TestScheduleDisabledAndElevatedFromConfig(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)
	h.mustRun(t, "config", "set", "run_elevated", "true")

	out := h.mustRun(t, "schedule", "weekly", "ed", "--time", "18:00", "--days", "MON,FRI", "--disabled")
	assert.Contains(t, out, "disabled")
	assert.Contains(t, h.fake.LastCall("/Create"), "HIGHEST")
	assert.Equal(t, 1, h.fake.Count("/Change"))

	var d struct{ Enabled, Elevated bool }
	name := h.fake.Names()[0]
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "tasks", "show", name, "--json")), &d))
	assert.False(t, d.Enabled)
	assert.True(t, d.Elevated)
}

func TestScheduleLogonRemove(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)
	h.mustRun(t, "schedule", "logon", "ed", "--delay", "2")
	assert.Equal(t, []string{"ShortRun_ed_LOGON"}, h.fake.Names())

	h.mustRun(t, "schedule", "logon", "ed", "--remove")
	assert.Empty(t, h.fake.Names())
}

func TestTasksCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)
	h.mustRun(t, "schedule", "daily", "ed", "--time", "09:00")
	h.mustRun(t, "schedule", "idle", "ed", "--idle", "10")

	out := h.mustRun(t, "tasks", "list", "ed")
	assert.Contains(t, out, "ShortRun_ed_DAILY_09-00")
	assert.Contains(t, out, "ShortRun_ed_ONIDLE_after10m")

	h.mustRun(t, "tasks", "disable", "ShortRun_ed_DAILY_09-00")
	h.mustRun(t, "tasks", "enable", "ShortRun_ed_DAILY_09-00")
	h.mustRun(t, "tasks", "rename", "ShortRun_ed_ONIDLE_after10m", "ShortRun_ed_ONIDLE_custom")
	assert.ElementsMatch(t, []string{"ShortRun_ed_DAILY_09-00", "ShortRun_ed_ONIDLE_custom"}, h.fake.Names())

	assert.Contains(t, h.mustRun(t, "tasks", "show", "ShortRun_ed_DAILY_09-00"), "DAILY")

	h.mustRun(t, "tasks", "delete", "ShortRun_ed_ONIDLE_custom")
	out = h.mustRun(t, "tasks", "purge", "ed")
	assert.Contains(t, out, "deleted ShortRun_ed_DAILY_09-00")
	assert.Empty(t, h.fake.Names())
	assert.Equal(t, "no tasks\n", h.mustRun(t, "tasks", "list"))
}

func TestTasksByAuthor(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)
	h.mustRun(t, "schedule", "daily", "ed", "--time", "09:00")
	h.mustRun(t, "schedule", "daily", "ed", "--time", "10:00")

	out, _, err := h.run("tasks", "by-author")
	require.NoError(t, err)
	assert.Contains(t, out, "ShortRun_ed_DAILY_09-00")
	assert.Contains(t, out, "ShortRun_ed_DAILY_10-00")

	var found []tasks.TaskSummary
	require.NoError(t, json.Unmarshal([]byte(h.mustRun(t, "tasks", "by-author", "-q", "--json", "somebody else")), &found))
	assert.Empty(t, found)
}

func TestAliasRemoveKeepsTasksUnlessPurged(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)
	h.mustRun(t, "schedule", "daily", "ed", "--time", "09:00")

	h.mustRun(t, "alias", "remove", "ed")
	assert.Len(t, h.fake.Names(), 1)

	h.mustRun(t, "alias", "add", "ed", editor)
	out := h.mustRun(t, "alias", "remove", "ed", "--purge-tasks")
	assert.Contains(t, out, "deleted task ShortRun_ed_DAILY_09-00")
	assert.Empty(t, h.fake.Names())
}

func TestExportImport(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)
	h.mustRun(t, "schedule", "daily", "ed", "--time", "09:00")
	h.mustRun(t, "schedule", "monthly", "ed", "--time", "07:00", "--days", "1,15")
	before := h.fake.Names()

	h.mustRun(t, "export", "-o", "/plans/setup.yaml")
	h.mustRun(t, "alias", "remove", "ed", "--purge-tasks")
	require.Empty(t, h.fake.Names())

	out := h.mustRun(t, "import", "/plans/setup.yaml")
	assert.Contains(t, out, "alias ed")
	assert.ElementsMatch(t, before, h.fake.Names())

	// Stdout export carries the same document.
	assert.Contains(t, h.mustRun(t, "export"), "alias: ed")
}

func TestImportRejectsInvalidPlan(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/plans/bad.yaml", []byte(`version: 1
aliases:
  - alias: ed
    exe: /apps/editor/editor.exe
    schedules:
      - kind: DAILY
        time: "26:00"
`), 0o644))

	_, _, err := h.run("import", "/plans/bad.yaml")
	assert.Error(t, err)
	assert.Zero(t, h.fake.CallCount())
	assert.Equal(t, "no aliases\n", h.mustRun(t, "alias", "list"))
}

func TestConfigSetShow(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "author = Team\n", h.mustRun(t, "config", "set", "author", "Team"))

	out := h.mustRun(t, "config", "show")
	assert.Contains(t, out, "# "+cfgPath)
	assert.Contains(t, out, "author = Team")

	cfg := config.NewStore(h.fs, cfgPath).Load()
	assert.Equal(t, "Team", cfg.Author)

	_, _, err := h.run("config", "set", "nope", "1")
	assert.Error(t, err)
}

func TestAutostart(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun(t, "autostart", "status"), "autostart off")

	_, _, err := h.run("autostart", "on", "--plan", "/plans/missing.yaml")
	assert.ErrorContains(t, err, "does not exist")

	h.mustRun(t, "export", "-o", "/plans/setup.yaml")
	h.mustRun(t, "autostart", "on", "--plan", "/plans/setup.yaml")
	assert.Contains(t, h.mustRun(t, "autostart", "status"), "autostart on")

	link, ok := h.links["/startup/ShortRun.lnk"]
	require.True(t, ok)
	assert.Equal(t, "/apps/shortrun.exe", link.TargetPath)
	assert.Equal(t, `import "/plans/setup.yaml"`, link.Arguments)

	h.mustRun(t, "autostart", "off")
	assert.Contains(t, h.mustRun(t, "autostart", "status"), "autostart off")
}

func TestChangesAreJournaled(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)
	h.mustRun(t, "schedule", "daily", "ed", "--time", "09:00")
	h.mustRun(t, "config", "set", "theme", "dark")
	h.mustRun(t, "tasks", "purge", "ed")

	n, err := audit.Verify(h.fs, "/data/audit.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestJournalDisabled(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "config", "set", "audit_enabled", "false")
	h.mustRun(t, "alias", "add", "ed", editor)

	n, err := audit.Verify(h.fs, "/data/audit.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the config change made before disabling is journaled")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"MON", "WED", "FRI"}, splitList([]string{"MON,WED", "FRI"}))
	assert.Equal(t, []string{"1", "15"}, splitList([]string{"1 15"}))
	assert.Nil(t, splitList(nil))
}

func TestScheduleFlagsTrigger(t *testing.T) {
	f := &scheduleFlags{time: "09:00", every: 2, endDate: "2026-12-31", repeatEvery: 30, repeatFor: "2:00"}
	trig := f.trigger(tasks.KindDaily)
	assert.Equal(t, tasks.KindDaily, trig.Kind)
	assert.Equal(t, 2, trig.Interval)
	require.NotNil(t, trig.Window)
	assert.Equal(t, "2026-12-31", trig.Window.EndDate)
	require.NotNil(t, trig.Repeat)
	assert.Equal(t, 30, trig.Repeat.EveryMinutes)

	bare := (&scheduleFlags{}).trigger(tasks.KindLogon)
	assert.Nil(t, bare.Window)
	assert.Nil(t, bare.Repeat)
}

func TestDoctor(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "alias", "add", "ed", editor)

	out := h.mustRun(t, "doctor")
	assert.Contains(t, out, "scheduler")
	assert.Contains(t, out, "1 aliases")
	assert.Contains(t, out, "1 entries verified")

	h.fake.FailNext("/Query", "ERROR: The Task Scheduler service is not available.")
	out, _, err := h.run("doctor")
	assert.Error(t, err)
	assert.Contains(t, out, "unhealthy")
}
