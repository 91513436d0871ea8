//go:build !windows

package scanner

import "github.com/shortrun/shortrun/internal/shortcut"

type noUninstall struct{}

func (noUninstall) UninstallEntries() ([]UninstallEntry, error) { return nil, nil }

func defaultUninstallSource() UninstallSource { return noUninstall{} }

func defaultResolver(string) (string, error) { return "", shortcut.ErrUnsupported }
