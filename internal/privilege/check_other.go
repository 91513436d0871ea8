//go:build !windows

package privilege

import "os"

// IsElevated returns true when running with UID 0.
func IsElevated() bool {
	return os.Getuid() == 0
}
