package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/agenda/internal/api"
	"github.com/joescharf/agenda/internal/daemon"
	"github.com/joescharf/agenda/internal/output"
)

// daemonEnv marks the re-executed child of 'serve start'.
const daemonEnv = "AGENDA_SERVE_DAEMON"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat webhook and admin API",
	Long: `Run the HTTP server that receives chat messages and exposes the
admin API. By default it listens on port 8080. Use --port to change it.

Use 'agenda serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "agenda-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "agenda-serve.log")
}

func serveRun(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, shutdownSignals()...)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.coord.Stop()

	if viper.GetBool("watchdog.rearm_on_start") {
		n, err := a.coord.RearmAll(ctx)
		if err != nil {
			return fmt.Errorf("rearm timers: %w", err)
		}
		if n > 0 {
			slog.Info("rearmed inactivity timers", "sessions", n)
		}
	}

	port := viper.GetInt("port")
	apiSrv := api.NewServer(a.store, a.coord, a.finder)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           apiSrv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if os.Getenv(daemonEnv) != "" {
		pf := pidFile()
		if err := pf.Write(port, viper.GetString("db_path")); err != nil {
			return fmt.Errorf("write PID file: %w", err)
		}
		defer func() { _ = pf.Remove() }()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	ui.Info("Listening on http://localhost:%d (timezone %s)", port, a.location)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
	}

	// Let accepted messages finish before the timers go away.
	apiSrv.Wait()
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if rec, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d, port %d)", rec.PID, rec.Port)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	args := []string{"serve", "--port", fmt.Sprint(viper.GetInt("port"))}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}

	if dryRun {
		ui.DryRunMsg("Would run %s %v (log: %s)", exe, args, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(serveLogPath()), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.Env = append(os.Environ(), daemonEnv+"=1")
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	// The child writes its own PID file once it is serving.
	_ = child.Process.Release()

	ui.Success("Server starting (pid %d), log: %s", child.Process.Pid, serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	rec, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("server not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", rec.PID)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal pid %d: %w", rec.PID, err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, alive := pf.IsRunning(); !alive {
			_ = pf.Remove()
			ui.Success("Server stopped (pid %d)", rec.PID)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	ui.Warning("Server did not exit in time, killing pid %d", rec.PID)
	if err := pf.Signal(sigKILL()); err != nil {
		return fmt.Errorf("kill pid %d: %w", rec.PID, err)
	}
	_ = pf.Remove()
	return nil
}

func serveStatusRun() error {
	rec, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server: %s", output.Yellow("not running"))
		return nil
	}
	ui.Info("Server: %s (pid %d, port %d, up %s)", output.Green("running"), rec.PID, rec.Port, rec.Uptime(time.Now()))
	if rec.DBPath != "" {
		ui.VerboseLog("Database: %s", rec.DBPath)
	}
	return nil
}
