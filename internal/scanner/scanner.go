// Package scanner discovers installed applications that are worth aliasing:
// entries from the Uninstall registry keys and Start-menu shortcuts.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/shortrun/shortrun/internal/logging"
	"github.com/shortrun/shortrun/internal/workerpool"
)

var log = logging.L("scanner")

// Source says where a candidate was found.
type Source string

const (
	SourceUninstall64     Source = "uninstall64"
	SourceUninstall32     Source = "uninstall32"
	SourceUninstallUser   Source = "uninstall_user"
	SourceStartMenuSystem Source = "startmenu_system"
	SourceStartMenuUser   Source = "startmenu_user"
)

// Candidate is one discovered application. For Start-menu entries ExePath
// is the .lnk itself and Target is its resolved .exe, if requested.
type Candidate struct {
	Name    string `json:"name"`
	ExePath string `json:"exe_path"`
	Target  string `json:"target,omitempty"`
	Source  Source `json:"source"`
}

// UninstallEntry is the subset of an Uninstall subkey the scanner reads.
type UninstallEntry struct {
	DisplayName     string
	DisplayIcon     string
	InstallLocation string
	Source          Source
}

// UninstallSource enumerates Uninstall subkeys.
type UninstallSource interface {
	UninstallEntries() ([]UninstallEntry, error)
}

// Resolver returns the .exe a shortcut points to.
type Resolver func(lnk string) (string, error)

// Options selects what Scan reports.
type Options struct {
	ShowUninstallers bool
	// ResolveShortcuts fills Candidate.Target for Start-menu entries.
	ResolveShortcuts bool
}

// Scanner holds the sources Scan reads from. Zero fields pick the
// platform defaults.
type Scanner struct {
	Fs            afero.Fs
	Uninstall     UninstallSource
	StartMenuDirs []string
	Resolve       Resolver
	Workers       int
}

// Scan lists candidates from every source, filtered and de-duplicated on
// the case-folded absolute path. Uninstall entries come first. A source
// that fails is logged and skipped.
func (s *Scanner) Scan(ctx context.Context, opts Options) ([]Candidate, error) {
	fsys := s.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	var items []Candidate
	uninstall := s.Uninstall
	if uninstall == nil {
		uninstall = defaultUninstallSource()
	}
	if entries, err := uninstall.UninstallEntries(); err != nil {
		log.Warn("uninstall scan failed", logging.KeyError, err.Error())
	} else {
		items = append(items, fromUninstall(fsys, entries, opts)...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirs := s.StartMenuDirs
	if dirs == nil {
		dirs = DefaultStartMenuDirs()
	}
	links := scanStartMenu(fsys, dirs, opts)
	if opts.ResolveShortcuts && len(links) > 0 {
		if err := s.resolve(ctx, links); err != nil {
			return nil, err
		}
	}
	items = append(items, links...)
	return Dedup(items), nil
}

// DefaultStartMenuDirs are the all-users and current-user Programs folders.
func DefaultStartMenuDirs() []string {
	programData := os.Getenv("ProgramData")
	if programData == "" {
		programData = `C:\ProgramData`
	}
	dirs := []string{filepath.Join(programData, `Microsoft\Windows\Start Menu\Programs`)}
	if appData := os.Getenv("APPDATA"); appData != "" {
		dirs = append(dirs, filepath.Join(appData, `Microsoft\Windows\Start Menu\Programs`))
	}
	return dirs
}

func fromUninstall(fsys afero.Fs, entries []UninstallEntry, opts Options) []Candidate {
	var out []Candidate
	for _, e := range entries {
		if e.DisplayName == "" {
			continue
		}
		exe := DisplayIconExe(e.DisplayIcon)
		if exe != "" && !isFile(fsys, exe) {
			exe = ""
		}
		if exe == "" && e.InstallLocation != "" {
			guess := filepath.Join(e.InstallLocation, e.DisplayName+".exe")
			if isFile(fsys, guess) {
				exe = guess
			}
		}
		if exe == "" || IsProxyExe(exe) {
			continue
		}
		if !opts.ShowUninstallers && (LooksUninstaller(exe) || LooksUninstaller(e.DisplayName)) {
			continue
		}
		out = append(out, Candidate{Name: e.DisplayName, ExePath: exe, Source: e.Source})
	}
	return out
}

// scanStartMenu lists .lnk files under dirs. The first directory is the
// all-users one.
func scanStartMenu(fsys afero.Fs, dirs []string, opts Options) []Candidate {
	var out []Candidate
	for i, dir := range dirs {
		src := SourceStartMenuUser
		if i == 0 {
			src = SourceStartMenuSystem
		}
		if dir == "" {
			continue
		}
		err := afero.Walk(fsys, dir, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				// Unreadable subtrees are skipped; the walk goes on.
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".lnk") {
				return nil
			}
			name := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
			if !opts.ShowUninstallers && (LooksUninstaller(name) || LooksUninstaller(path)) {
				return nil
			}
			out = append(out, Candidate{Name: name, ExePath: path, Source: src})
			return nil
		})
		if err != nil {
			log.Debug("start menu walk failed", "dir", dir, logging.KeyError, err.Error())
		}
	}
	return out
}

// resolve fills Target for each link on a bounded pool. Links that cannot
// be resolved keep an empty Target.
func (s *Scanner) resolve(ctx context.Context, links []Candidate) error {
	resolver := s.Resolve
	if resolver == nil {
		resolver = defaultResolver
	}
	workers := s.Workers
	if workers <= 0 {
		workers = workerpool.SizeForCPU(2, 8)
	}
	return workerpool.Each(ctx, workers, links, func(_ context.Context, i int, link Candidate) {
		target, err := resolver(link.ExePath)
		if err != nil {
			log.Debug("shortcut unresolved", "path", link.ExePath, logging.KeyError, err.Error())
			return
		}
		if !IsProxyExe(target) {
			links[i].Target = target
		}
	})
}

// Dedup keeps the first candidate for each case-folded absolute path.
func Dedup(items []Candidate) []Candidate {
	seen := make(map[string]bool, len(items))
	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		key := it.ExePath
		if abs, err := filepath.Abs(key); err == nil {
			key = abs
		}
		key = strings.ToLower(filepath.Clean(key))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// SortByName orders candidates case-insensitively by name, then path.
func SortByName(items []Candidate) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := strings.ToLower(items[i].Name), strings.ToLower(items[j].Name)
		if a != b {
			return a < b
		}
		return strings.ToLower(items[i].ExePath) < strings.ToLower(items[j].ExePath)
	})
}

var (
	iconPathRe = regexp.MustCompile(`^\s*"?([A-Za-z]:[^,"]+?\.exe)"?(?:,.*)?$`)
	proxyNames = map[string]bool{
		"chrome_proxy.exe":  true,
		"brave_proxy.exe":   true,
		"msedge_proxy.exe":  true,
		"edge_proxy.exe":    true,
		"vivaldi_proxy.exe": true,
		"opera_proxy.exe":   true,
	}
	uninstallerRe = regexp.MustCompile(`(?i)(^|[^a-z])uninstall(er)?([^a-z]|$)|(^|[^a-z])setup([^a-z]|$)|(^|[^a-z])unins([^a-z]|$)|(^|[^a-z])remove(r)?([^a-z]|$)`)
)

// DisplayIconExe extracts the executable path from an Uninstall DisplayIcon
// value such as `"C:\App\app.exe",0`. It returns "" when there is none.
func DisplayIconExe(icon string) string {
	if icon == "" {
		return ""
	}
	if m := iconPathRe.FindStringSubmatch(icon); m != nil {
		return strings.TrimSpace(m[1])
	}
	s := strings.Trim(strings.TrimSpace(icon), `"`)
	if i := strings.Index(strings.ToLower(s), ".exe"); i >= 0 {
		return s[:i+4]
	}
	return ""
}

// IsProxyExe reports browser app-launcher proxies such as chrome_proxy.exe.
func IsProxyExe(path string) bool {
	base := strings.ToLower(baseName(path))
	return strings.HasSuffix(base, "_proxy.exe") || proxyNames[base]
}

// LooksUninstaller matches uninstall, setup, unins and remove(r) as whole
// words in the base name of s.
func LooksUninstaller(s string) bool {
	return uninstallerRe.MatchString(baseName(s))
}

// baseName splits on both separators so Windows paths work on any OS.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		return p[i+1:]
	}
	return p
}

func isFile(fsys afero.Fs, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir()
}
