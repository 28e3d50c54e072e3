// Package daemon tracks the background server process.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Record is what a running server writes about itself.
type Record struct {
	PID       int       `yaml:"pid"`
	Port      int       `yaml:"port,omitempty"`
	DBPath    string    `yaml:"db_path,omitempty"`
	StartedAt time.Time `yaml:"started_at"`
}

// Uptime returns how long the recorded process has been up at now.
func (r Record) Uptime(now time.Time) time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(r.StartedAt).Truncate(time.Second)
}

// PIDFile stores a Record for the server started in the background.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Write records the current process listening on port.
func (p *PIDFile) Write(port int, dbPath string) error {
	return p.WriteRecord(Record{
		PID:       os.Getpid(),
		Port:      port,
		DBPath:    dbPath,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	})
}

// WriteRecord writes rec, creating the parent directory if needed.
func (p *PIDFile) WriteRecord(rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("invalid pid %d", rec.PID)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode pid file: %w", err)
	}
	return os.WriteFile(p.Path, data, 0o644)
}

// Read returns the stored record.
func (p *PIDFile) Read() (Record, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("invalid PID file content: %w", err)
	}
	if rec.PID <= 0 {
		return Record{}, errors.New("invalid PID file content: no pid")
	}
	return rec, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
