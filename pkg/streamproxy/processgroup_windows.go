//go:build windows
// +build windows

package streamproxy

import (
	"os/exec"
	"strconv"
	"syscall"
)

func configureAsProcessGroup() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Taskkill command documentation: https://learn.microsoft.com/en-us/windows-server/administration/windows-commands/taskkill
func taskkill(cmd *exec.Cmd, force bool) error {
	if cmd.Process == nil {
		return nil
	}

	args := []string{"/T", "/PID", strconv.Itoa(cmd.Process.Pid)}
	if force {
		args = append([]string{"/F"}, args...)
	}

	return exec.Command("TASKKILL", args...).Run()
}

func terminateProcessGroup(cmd *exec.Cmd) error {
	return taskkill(cmd, false)
}

func killProcessGroup(cmd *exec.Cmd) error {
	return taskkill(cmd, true)
}
