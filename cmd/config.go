package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "agenda"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage agenda configuration.

Running bare 'agenda config' is the same as 'agenda config show'.
Every key can also be set through an AGENDA_* environment variable
(dots become underscores) or a .env file in the working directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# agenda configuration
# See: agenda config show (for effective values and sources)

# State/data directory (default: ~/.config/agenda)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/agenda/agenda.db)
# db_path: {{ .DBPath }}

# Time zone for business hours and all user-facing dates
timezone: "{{ .Timezone }}"

# HTTP port for 'agenda serve'
port: {{ .Port }}

store:
  # sqlite or memory (memory loses sessions and events on restart)
  driver: "{{ .StoreDriver }}"

watchdog:
  # Silence before asking "are you still there?"
  inactivity_timeout: "{{ .InactivityTimeout }}"
  # Further silence before closing the conversation
  final_timeout: "{{ .FinalTimeout }}"
  # Resume timers for stored sessions when the server starts
  rearm_on_start: {{ .RearmOnStart }}

slots:
  # How far ahead users may book, 14 to 30 days
  horizon_days: {{ .HorizonDays }}
  weekdays: [{{ .Weekdays }}]
  start_times: [{{ .StartTimes }}]
  duration: "{{ .SlotDuration }}"
  # Days offered when booking, slots offered when rescheduling or in triage
  max_days: {{ .MaxDays }}
  max_slots: {{ .MaxSlots }}

bot:
  # Operator messages that hand a conversation to a human and back
  pause_token: "{{ .PauseToken }}"
  resume_token: "{{ .ResumeToken }}"
  lookup_window_days: {{ .LookupWindowDays }}
  video_base_url: "{{ .VideoBaseURL }}"
  office_address: "{{ .OfficeAddress }}"

messaging:
  # console prints replies; webhook posts them to the chat provider
  driver: "{{ .MessagingDriver }}"
  webhook_url: "{{ .WebhookURL }}"
  # token: set AGENDA_MESSAGING_TOKEN instead of storing it here
  timeout: "{{ .MessagingTimeout }}"
`

type configTemplateData struct {
	StateDir          string
	DBPath            string
	Timezone          string
	Port              int
	StoreDriver       string
	InactivityTimeout string
	FinalTimeout      string
	RearmOnStart      bool
	HorizonDays       int
	Weekdays          string
	StartTimes        string
	SlotDuration      string
	MaxDays           int
	MaxSlots          int
	PauseToken        string
	ResumeToken       string
	LookupWindowDays  int
	VideoBaseURL      string
	OfficeAddress     string
	MessagingDriver   string
	WebhookURL        string
	MessagingTimeout  string
}

func quotedList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return strings.Join(quoted, ", ")
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:          viper.GetString("state_dir"),
		DBPath:            viper.GetString("db_path"),
		Timezone:          viper.GetString("timezone"),
		Port:              viper.GetInt("port"),
		StoreDriver:       viper.GetString("store.driver"),
		InactivityTimeout: viper.GetDuration("watchdog.inactivity_timeout").String(),
		FinalTimeout:      viper.GetDuration("watchdog.final_timeout").String(),
		RearmOnStart:      viper.GetBool("watchdog.rearm_on_start"),
		HorizonDays:       viper.GetInt("slots.horizon_days"),
		Weekdays:          quotedList(viper.GetStringSlice("slots.weekdays")),
		StartTimes:        quotedList(viper.GetStringSlice("slots.start_times")),
		SlotDuration:      viper.GetDuration("slots.duration").String(),
		MaxDays:           viper.GetInt("slots.max_days"),
		MaxSlots:          viper.GetInt("slots.max_slots"),
		PauseToken:        viper.GetString("bot.pause_token"),
		ResumeToken:       viper.GetString("bot.resume_token"),
		LookupWindowDays:  viper.GetInt("bot.lookup_window_days"),
		VideoBaseURL:      viper.GetString("bot.video_base_url"),
		OfficeAddress:     viper.GetString("bot.office_address"),
		MessagingDriver:   viper.GetString("messaging.driver"),
		WebhookURL:        viper.GetString("messaging.webhook_url"),
		MessagingTimeout:  viper.GetDuration("messaging.timeout").String(),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "AGENDA_STATE_DIR"},
	{Key: "db_path", EnvVar: "AGENDA_DB_PATH"},
	{Key: "store.driver", EnvVar: "AGENDA_STORE_DRIVER"},
	{Key: "timezone", EnvVar: "AGENDA_TIMEZONE"},
	{Key: "port", EnvVar: "AGENDA_PORT"},
	{Key: "log_level", EnvVar: "AGENDA_LOG_LEVEL"},
	{Key: "watchdog.inactivity_timeout", EnvVar: "AGENDA_WATCHDOG_INACTIVITY_TIMEOUT"},
	{Key: "watchdog.final_timeout", EnvVar: "AGENDA_WATCHDOG_FINAL_TIMEOUT"},
	{Key: "watchdog.rearm_on_start", EnvVar: "AGENDA_WATCHDOG_REARM_ON_START"},
	{Key: "slots.horizon_days", EnvVar: "AGENDA_SLOTS_HORIZON_DAYS"},
	{Key: "slots.weekdays", EnvVar: "AGENDA_SLOTS_WEEKDAYS"},
	{Key: "slots.start_times", EnvVar: "AGENDA_SLOTS_START_TIMES"},
	{Key: "slots.duration", EnvVar: "AGENDA_SLOTS_DURATION"},
	{Key: "slots.max_days", EnvVar: "AGENDA_SLOTS_MAX_DAYS"},
	{Key: "slots.max_slots", EnvVar: "AGENDA_SLOTS_MAX_SLOTS"},
	{Key: "bot.pause_token", EnvVar: "AGENDA_BOT_PAUSE_TOKEN"},
	{Key: "bot.resume_token", EnvVar: "AGENDA_BOT_RESUME_TOKEN"},
	{Key: "bot.lookup_window_days", EnvVar: "AGENDA_BOT_LOOKUP_WINDOW_DAYS"},
	{Key: "bot.video_base_url", EnvVar: "AGENDA_BOT_VIDEO_BASE_URL"},
	{Key: "bot.office_address", EnvVar: "AGENDA_BOT_OFFICE_ADDRESS"},
	{Key: "bot.recheck_booking", EnvVar: "AGENDA_BOT_RECHECK_BOOKING"},
	{Key: "messaging.driver", EnvVar: "AGENDA_MESSAGING_DRIVER"},
	{Key: "messaging.webhook_url", EnvVar: "AGENDA_MESSAGING_WEBHOOK_URL"},
	{Key: "messaging.token", EnvVar: "AGENDA_MESSAGING_TOKEN", Secret: true},
	{Key: "messaging.timeout", EnvVar: "AGENDA_MESSAGING_TIMEOUT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret && viper.GetString(k.Key) != "" {
			val = "********"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'agenda config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
