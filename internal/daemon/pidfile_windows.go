//go:build windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// IsRunning reports the recorded process and whether it is alive.
func (p *PIDFile) IsRunning() (Record, bool) {
	rec, err := p.Read()
	if err != nil {
		return Record{}, false
	}
	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return rec, false
	}
	// FindProcess always succeeds on Windows.
	return rec, proc.Signal(syscall.Signal(0)) == nil
}

// Signal sends sig to the recorded process. Only os.Kill is reliable here.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	rec, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return fmt.Errorf("find process %d: %w", rec.PID, err)
	}
	return proc.Signal(sig)
}
