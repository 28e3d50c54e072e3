package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_WriteRecordAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "agenda-serve.pid")
	pf := NewPIDFile(path)

	started := time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)
	require.NoError(t, pf.WriteRecord(Record{PID: 12345, Port: 8080, DBPath: "/tmp/agenda.db", StartedAt: started}))

	rec, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, rec.PID)
	assert.Equal(t, 8080, rec.Port)
	assert.Equal(t, "/tmp/agenda.db", rec.DBPath)
	assert.True(t, rec.StartedAt.Equal(started))
	assert.Equal(t, 90*time.Second, rec.Uptime(started.Add(90*time.Second+400*time.Millisecond)))
}

func TestPIDFile_Write_CurrentProcess(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))
	require.NoError(t, pf.Write(9090, ""))

	rec, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, 9090, rec.Port)
	assert.False(t, rec.StartedAt.IsZero())
}

func TestPIDFile_WriteRecord_InvalidPID(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))
	assert.Error(t, pf.WriteRecord(Record{}))
}

func TestPIDFile_Read_MissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nonexistent.pid"))
	_, err := pf.Read()
	assert.Error(t, err)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	pf := NewPIDFile(path)

	require.NoError(t, os.WriteFile(path, []byte("pid: [not, a, number]\n"), 0o644))
	_, err := pf.Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")

	require.NoError(t, os.WriteFile(path, []byte("port: 8080\n"), 0o644))
	_, err = pf.Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pid")
}

func TestPIDFile_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(path)
	require.NoError(t, pf.WriteRecord(Record{PID: 1}))

	require.NoError(t, pf.Remove())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, pf.Remove())
}

func TestPIDFile_IsRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))

	rec, running := pf.IsRunning()
	assert.False(t, running)
	assert.Zero(t, rec.PID)

	require.NoError(t, pf.Write(8080, ""))
	rec, running = pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), rec.PID)

	// A PID that almost certainly does not exist.
	require.NoError(t, pf.WriteRecord(Record{PID: 999999}))
	rec, running = pf.IsRunning()
	assert.Equal(t, 999999, rec.PID)
	assert.False(t, running)
}

func TestPIDFile_Signal(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))

	err := pf.Signal(syscall.Signal(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PID file")

	require.NoError(t, pf.Write(8080, ""))
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}
