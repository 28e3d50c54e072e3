//go:build !windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs puts the background server in its own session so it
// survives the terminal that started it.
func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func shutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

func sigTERM() syscall.Signal { return syscall.SIGTERM }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
