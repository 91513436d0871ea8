//go:build windows

package schtasks

import "golang.org/x/sys/windows"

// consoleCodePage is the code page console tools write in. Without an
// attached console the ANSI code page is the closest match.
func consoleCodePage() uint32 {
	if cp, err := windows.GetConsoleOutputCP(); err == nil && cp != 0 {
		return cp
	}
	return windows.GetACP()
}
