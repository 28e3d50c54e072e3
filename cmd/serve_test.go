package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/agenda/internal/daemon"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	pf := pidFile()
	assert.Equal(t, filepath.Join(dir, "agenda-serve.pid"), pf.Path)
}

func TestServeLogPath(t *testing.T) {
	dir := testEnv(t)

	assert.Equal(t, filepath.Join(dir, "agenda-serve.log"), serveLogPath())
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so status should show "not running" without error.
	require.NoError(t, serveStatusRun())
	assert.Contains(t, stdout(), "not running")
}

func TestServeStatusRun_Running(t *testing.T) {
	dir := testEnv(t)

	pf := daemon.NewPIDFile(filepath.Join(dir, "agenda-serve.pid"))
	require.NoError(t, pf.Write(9090, filepath.Join(dir, "agenda.db")))

	require.NoError(t, serveStatusRun())
	assert.Contains(t, stdout(), "running")
	assert.Contains(t, stdout(), "port 9090")
}

func TestServeStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so stop should return an error.
	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestServeStopRun_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	// Point at this test process; dry-run must not signal it.
	pf := daemon.NewPIDFile(filepath.Join(dir, "agenda-serve.pid"))
	require.NoError(t, pf.Write(8080, ""))

	require.NoError(t, serveStopRun())
	_, err := os.Stat(pf.Path)
	assert.NoError(t, err, "dry-run must keep the PID file")
}

func TestServeStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// Write a PID file for the current process (which is alive).
	pf := daemon.NewPIDFile(filepath.Join(dir, "agenda-serve.pid"))
	require.NoError(t, pf.Write(8080, ""))
	t.Cleanup(func() { _ = os.Remove(pf.Path) })

	err := serveStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServeStartRun_DryRun(t *testing.T) {
	testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	require.NoError(t, serveStartRun())
	_, err := os.Stat(serveLogPath())
	assert.True(t, os.IsNotExist(err), "dry-run must not create the log file")
}
