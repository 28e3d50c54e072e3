package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/agenda/internal/output"
	"github.com/joescharf/agenda/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Appointment-booking chat assistant",
	Long: `agenda runs the conversation engine behind a chat booking assistant.
It receives chat messages over HTTP, walks each user through booking,
triage, rescheduling or cancelling an appointment, and keeps the
office calendar in its local database.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/agenda/config.yaml)")
}

// loadDotEnv loads .env.local then .env from the working directory. Values
// already in the environment win. AGENDA_DOTENV=off disables it.
func loadDotEnv() {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("AGENDA_DOTENV"))) {
	case "0", "false", "off", "no":
		return
	}
	for _, p := range []string{".env.local", ".env"} {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: cannot load %s: %v\n", p, err)
		}
	}
}

func initConfig() {
	loadDotEnv()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AGENDA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultDir, _ := configDirFunc()
	setDefaults(defaultDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every configuration key with its default.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "agenda.db"))
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("timezone", "America/Sao_Paulo")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("port", 8080)

	viper.SetDefault("watchdog.inactivity_timeout", "90s")
	viper.SetDefault("watchdog.final_timeout", "30s")
	viper.SetDefault("watchdog.rearm_on_start", true)

	viper.SetDefault("slots.horizon_days", 14)
	viper.SetDefault("slots.weekdays", []string{"mon", "tue", "wed", "thu", "fri"})
	viper.SetDefault("slots.start_times", []string{"09:00", "10:30", "15:00", "16:30"})
	viper.SetDefault("slots.duration", "1h")
	viper.SetDefault("slots.max_days", 5)
	viper.SetDefault("slots.max_slots", 6)

	viper.SetDefault("bot.pause_token", "#pausar")
	viper.SetDefault("bot.resume_token", "#retomar")
	viper.SetDefault("bot.lookup_window_days", 60)
	viper.SetDefault("bot.video_base_url", "https://meet.jit.si")
	viper.SetDefault("bot.office_address", "")
	viper.SetDefault("bot.recheck_booking", true)

	viper.SetDefault("messaging.driver", "console")
	viper.SetDefault("messaging.webhook_url", "")
	viper.SetDefault("messaging.token", "")
	viper.SetDefault("messaging.timeout", "10s")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := parseLogLevel(viper.GetString("log_level"))
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Initialize store lazily — only when commands actually need it.
	// This allows config/version commands to run without a db.
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	switch driver := viper.GetString("store.driver"); driver {
	case "memory":
		dataStore = store.NewMemoryStore()
		return dataStore, nil
	case "sqlite", "":
	default:
		return nil, fmt.Errorf("unknown store driver %q (want sqlite or memory)", driver)
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(commandContext()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// commandContext is the running command's context, or Background outside of
// Execute.
func commandContext() context.Context {
	if ctx := rootCmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
