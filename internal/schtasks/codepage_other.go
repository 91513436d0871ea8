//go:build !windows

package schtasks

func consoleCodePage() uint32 { return codePageUTF8 }
