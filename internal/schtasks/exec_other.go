//go:build !windows

package schtasks

import "os/exec"

func hideWindow(cmd *exec.Cmd) {}
