//go:build windows

package scanner

import (
	"errors"

	"golang.org/x/sys/windows/registry"

	"github.com/shortrun/shortrun/internal/shortcut"
)

const uninstallPath = `Software\Microsoft\Windows\CurrentVersion\Uninstall`

// RegistryUninstall reads the 64-bit and 32-bit machine views and the
// current user's Uninstall key.
type RegistryUninstall struct{}

func defaultUninstallSource() UninstallSource { return RegistryUninstall{} }

func defaultResolver(lnk string) (string, error) { return shortcut.ResolveExe(lnk) }

func (RegistryUninstall) UninstallEntries() ([]UninstallEntry, error) {
	views := []struct {
		root   registry.Key
		access uint32
		source Source
	}{
		{registry.LOCAL_MACHINE, registry.WOW64_64KEY, SourceUninstall64},
		{registry.LOCAL_MACHINE, registry.WOW64_32KEY, SourceUninstall32},
		{registry.CURRENT_USER, 0, SourceUninstallUser},
	}

	var (
		out  []UninstallEntry
		errs []error
	)
	for _, v := range views {
		entries, err := readView(v.root, v.access, v.source)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, entries...)
	}
	if len(out) == 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func readView(root registry.Key, access uint32, source Source) ([]UninstallEntry, error) {
	k, err := registry.OpenKey(root, uninstallPath, registry.ENUMERATE_SUB_KEYS|access)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer k.Close()

	names, err := k.ReadSubKeyNames(-1)
	if err != nil {
		return nil, err
	}
	out := make([]UninstallEntry, 0, len(names))
	for _, name := range names {
		sk, err := registry.OpenKey(root, uninstallPath+`\`+name, registry.QUERY_VALUE|access)
		if err != nil {
			continue
		}
		e := UninstallEntry{Source: source}
		e.DisplayName, _, _ = sk.GetStringValue("DisplayName")
		e.DisplayIcon, _, _ = sk.GetStringValue("DisplayIcon")
		e.InstallLocation, _, _ = sk.GetStringValue("InstallLocation")
		sk.Close()
		out = append(out, e)
	}
	return out, nil
}
