//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs does nothing: Windows has no session detach.
func setDaemonAttrs(_ *exec.Cmd) {}

func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// Both stop signals end up as TerminateProcess on Windows.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
