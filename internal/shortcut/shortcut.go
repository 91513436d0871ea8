// Package shortcut reads and writes Windows .lnk files through the
// WScript.Shell automation object.
package shortcut

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned on platforms without WScript.Shell.
var ErrUnsupported = errors.New("shortcuts are only supported on Windows")

// Shortcut holds the fields of a .lnk file this tool reads or writes.
type Shortcut struct {
	TargetPath       string
	Arguments        string
	WorkingDirectory string
	Description      string
}

// IsLink reports whether path names a .lnk file by extension.
func IsLink(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".lnk")
}

// ResolveExe returns the target of the shortcut at path when it is an .exe.
func ResolveExe(path string) (string, error) {
	s, err := Read(path)
	if err != nil {
		return "", err
	}
	target := strings.Trim(strings.TrimSpace(s.TargetPath), `"`)
	if !strings.EqualFold(filepath.Ext(target), ".exe") {
		return "", errors.New("shortcut does not point at an .exe: " + path)
	}
	return target, nil
}
