//go:build !windows

package daemon

import (
	"fmt"
	"syscall"
)

// IsRunning reports the recorded process and whether it is alive.
func (p *PIDFile) IsRunning() (Record, bool) {
	rec, err := p.Read()
	if err != nil {
		return Record{}, false
	}
	// Signal 0 probes without delivering anything.
	return rec, syscall.Kill(rec.PID, 0) == nil
}

// Signal sends sig to the recorded process.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	rec, err := p.Read()
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	return syscall.Kill(rec.PID, sig)
}
