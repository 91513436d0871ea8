package aliases

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/schtasks/schtaskstest"
	"github.com/shortrun/shortrun/internal/tasks"
)

const (
	editor = "/apps/editor/editor.exe"
	viewer = "/apps/viewer/viewer.exe"
)

func newTestStore(t *testing.T) (*Store, *MemoryBackend, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for _, p := range []string{editor, viewer} {
		require.NoError(t, afero.WriteFile(fsys, p, []byte("MZ"), 0o755))
	}
	b := NewMemoryBackend()
	return NewStore(b, Options{Fs: fsys}), b, fsys
}

func TestValidateAlias(t *testing.T) {
	for _, ok := range []string{"a", "notepad", "my-tool_2", strings.Repeat("a", 64)} {
		assert.NoError(t, ValidateAlias(ok), ok)
	}
	for _, bad := range []string{"", "has space", "dot.name", "sl/ash", "ünicode", strings.Repeat("a", 65)} {
		assert.ErrorIs(t, ValidateAlias(bad), ErrInvalidAlias, bad)
	}
}

func TestAddWritesAppPathsValues(t *testing.T) {
	s, b, _ := newTestStore(t)

	e, err := s.Add("ed", editor, false)
	require.NoError(t, err)
	assert.Equal(t, &Entry{Alias: "ed", ExePath: editor}, e)

	v, err := b.Read("ed.exe")
	require.NoError(t, err)
	assert.Equal(t, editor, v.Strings[""])
	assert.Equal(t, "/apps/editor", v.Strings["Path"])
	assert.Equal(t, MarkerValue, v.Strings[MarkerName])
	assert.Equal(t, uint32(0), v.DWords["RunAsAdmin"])
}

func TestAddRejectsInvalidInput(t *testing.T) {
	s, b, _ := newTestStore(t)

	_, err := s.Add("bad alias", editor, false)
	assert.ErrorIs(t, err, ErrInvalidAlias)

	_, err = s.Add("ghost", "/apps/missing.exe", false)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = s.Add("dir", "/apps/editor", false)
	assert.Error(t, err)

	keys, _ := b.Keys()
	assert.Empty(t, keys)
}

func TestAddConflicts(t *testing.T) {
	s, b, _ := newTestStore(t)

	_, err := s.Add("ed", editor, false)
	require.NoError(t, err)
	_, err = s.Add("ED", viewer, false)
	assert.ErrorIs(t, err, ErrAliasExists)

	// Foreign keys also conflict.
	require.NoError(t, b.Write("chrome.exe", &Values{Strings: map[string]string{"": `C:\chrome.exe`}}))
	_, err = s.Add("chrome", viewer, false)
	assert.ErrorIs(t, err, ErrAliasExists)

	e, err := s.Add("ed", viewer, true)
	require.NoError(t, err)
	assert.Equal(t, viewer, e.ExePath)
	got, err := s.Get("ed")
	require.NoError(t, err)
	assert.Equal(t, viewer, got.ExePath)
}

func TestForeignEntriesInvisible(t *testing.T) {
	s, b, _ := newTestStore(t)
	require.NoError(t, b.Write("chrome.exe", &Values{Strings: map[string]string{"": `C:\chrome.exe`}}))
	require.NoError(t, b.Write("other.exe", &Values{Strings: map[string]string{"": `C:\other.exe`, MarkerName: "0"}}))
	_, err := s.Add("ed", editor, false)
	require.NoError(t, err)

	list, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Alias: "ed", ExePath: editor}}, list)

	_, err = s.Get("chrome")
	assert.ErrorIs(t, err, ErrAliasNotFound)
}

func TestListSortedAndStripsSuffix(t *testing.T) {
	s, b, _ := newTestStore(t)
	_, err := s.Add("zed", editor, false)
	require.NoError(t, err)
	_, err = s.Add("Alpha", viewer, false)
	require.NoError(t, err)
	require.NoError(t, b.Write("mixed.EXE", &Values{Strings: map[string]string{"": editor, MarkerName: MarkerValue}}))

	list, err := s.List()
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.Alias)
	}
	assert.Equal(t, []string{"Alpha", "mixed", "zed"}, names)
}

func TestRunAsAdminReadsDWordOrString(t *testing.T) {
	s, b, _ := newTestStore(t)
	for name, v := range map[string]*Values{
		"dword.exe": {Strings: map[string]string{"": editor, MarkerName: MarkerValue}, DWords: map[string]uint32{"RunAsAdmin": 1}},
		"yes.exe":   {Strings: map[string]string{"": editor, MarkerName: MarkerValue, "RunAsAdmin": " Yes "}},
		"true.exe":  {Strings: map[string]string{"": editor, MarkerName: MarkerValue, "RunAsAdmin": "true"}},
		"no.exe":    {Strings: map[string]string{"": editor, MarkerName: MarkerValue, "RunAsAdmin": "0"}},
	} {
		require.NoError(t, b.Write(name, v))
	}
	for alias, want := range map[string]bool{"dword": true, "yes": true, "true": true, "no": false} {
		e, err := s.Get(alias)
		require.NoError(t, err)
		assert.Equal(t, want, e.RunAsAdmin, alias)
	}
}

func TestSetRunAsAdmin(t *testing.T) {
	s, b, _ := newTestStore(t)
	_, err := s.Add("ed", editor, false)
	require.NoError(t, err)

	require.NoError(t, s.SetRunAsAdmin("ed", true))
	e, err := s.Get("ed")
	require.NoError(t, err)
	assert.True(t, e.RunAsAdmin)

	// Overwrites a string-typed flag with a DWORD.
	require.NoError(t, b.Write("ed.exe", &Values{Strings: map[string]string{"RunAsAdmin": "yes"}}))
	require.NoError(t, s.SetRunAsAdmin("ed", false))
	e, err = s.Get("ed")
	require.NoError(t, err)
	assert.False(t, e.RunAsAdmin)

	assert.ErrorIs(t, s.SetRunAsAdmin("nobody", true), ErrAliasNotFound)
}

func TestUpdateInPlaceKeepsFlag(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Add("ed", editor, false)
	require.NoError(t, err)
	require.NoError(t, s.SetRunAsAdmin("ed", true))

	e, err := s.Update("ed", "ed", viewer, false)
	require.NoError(t, err)
	assert.Equal(t, &Entry{Alias: "ed", ExePath: viewer, RunAsAdmin: true}, e)

	got, err := s.Get("ed")
	require.NoError(t, err)
	assert.Equal(t, *e, *got)
}

func TestUpdateRename(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Add("ed", editor, false)
	require.NoError(t, err)
	_, err = s.Add("vw", viewer, false)
	require.NoError(t, err)

	_, err = s.Update("ed", "vw", editor, false)
	assert.ErrorIs(t, err, ErrAliasExists)

	e, err := s.Update("ed", "editor", editor, false)
	require.NoError(t, err)
	assert.Equal(t, "editor", e.Alias)

	_, err = s.Get("ed")
	assert.ErrorIs(t, err, ErrAliasNotFound)
	_, err = s.Get("editor")
	assert.NoError(t, err)

	_, err = s.Update("missing", "other", editor, false)
	assert.ErrorIs(t, err, ErrAliasNotFound)
}

func TestRemove(t *testing.T) {
	s, b, _ := newTestStore(t)
	_, err := s.Add("ed", editor, false)
	require.NoError(t, err)

	require.NoError(t, s.Remove("ed"))
	_, err = b.Read("ed.exe")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	assert.NoError(t, s.Remove("ed"), "removing a missing alias is not an error")

	require.NoError(t, b.Write("chrome.exe", &Values{Strings: map[string]string{"": `C:\chrome.exe`}}))
	assert.ErrorIs(t, s.Remove("chrome"), ErrNotOwned)
	_, err = b.Read("chrome.exe")
	assert.NoError(t, err, "foreign key must survive")
}

func TestRemoveDoesNotTouchTasks(t *testing.T) {
	s, _, fsys := newTestStore(t)
	fake := schtaskstest.New(fsys)
	sched := tasks.New(fake, tasks.Options{Fs: fsys, TempDir: "/tmp", Lock: tasks.NoLock()})
	ctx := context.Background()

	_, err := s.Add("ed", editor, false)
	require.NoError(t, err)
	created, err := sched.CreateDaily(ctx, "ed", editor, "09:00", tasks.Extras{})
	require.NoError(t, err)

	require.NoError(t, s.Remove("ed"))
	assert.Equal(t, []string{created.Name}, fake.Names())
}

func TestMutationsAreJournaled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, editor, []byte("MZ"), 0o755))
	journal, err := audit.NewLogger(fsys, "/data")
	require.NoError(t, err)
	s := NewStore(NewMemoryBackend(), Options{Fs: fsys, Audit: journal})

	_, err = s.Add("ed", editor, false)
	require.NoError(t, err)
	require.NoError(t, s.SetRunAsAdmin("ed", true))
	require.NoError(t, s.Remove("ed"))
	require.NoError(t, journal.Close())

	n, err := audit.Verify(fsys, journal.Path())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAliasOf(t *testing.T) {
	assert.Equal(t, "ed", aliasOf("ed.exe"))
	assert.Equal(t, "ed", aliasOf("ed.EXE"))
	assert.Equal(t, "ed", aliasOf("ed"))
	assert.Equal(t, ".exe", aliasOf(".exe"))
}
