package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/agenda/internal/models"
	"github.com/joescharf/agenda/internal/output"
	"github.com/joescharf/agenda/internal/store"
)

var (
	sessionsStage  string
	sessionsFormat string
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session", "s"},
	Short:   "Inspect and control live conversations",
	Long: `List, inspect, pause, resume and reset the per-user conversation
sessions stored in the database.

Pausing a session hands the conversation to a human operator: the assistant
stays silent until the session is resumed.`,
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show one session in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsShowRun(args[0])
	},
}

var sessionsPauseCmd = &cobra.Command{
	Use:   "pause <user-id>",
	Short: "Hand a conversation to a human operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsSetPausedRun(args[0], true)
	},
}

var sessionsResumeCmd = &cobra.Command{
	Use:   "resume <user-id>",
	Short: "Give a paused conversation back to the assistant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsSetPausedRun(args[0], false)
	},
}

var sessionsResetCmd = &cobra.Command{
	Use:     "reset <user-id>",
	Aliases: []string{"rm", "delete"},
	Short:   "Delete a session so the user starts over",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsResetRun(args[0])
	},
}

func init() {
	sessionsListCmd.Flags().StringVar(&sessionsStage, "stage", "", "Only show sessions in this stage")
	sessionsShowCmd.Flags().StringVarP(&sessionsFormat, "output", "o", "yaml", "Output format (yaml or json)")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsPauseCmd)
	sessionsCmd.AddCommand(sessionsResumeCmd)
	sessionsCmd.AddCommand(sessionsResetCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func sessionsListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	var filter models.Stage
	if sessionsStage != "" {
		filter = models.Stage(sessionsStage)
		if !filter.Valid() {
			return fmt.Errorf("unknown stage %q", sessionsStage)
		}
	}

	sessions, err := s.ListSessions(commandContext())
	if err != nil {
		return err
	}

	now := time.Now()
	var rows [][]string
	for _, sess := range sessions {
		if filter != "" && sess.Stage != filter {
			continue
		}
		rows = append(rows, []string{
			sess.UserID,
			output.StageColor(string(sess.Stage)),
			string(sess.Fields.Flow),
			output.PausedLabel(sess.Paused),
			fmt.Sprint(sess.Generation),
			output.Ago(sess.LastInteractionAt, now),
		})
	}

	if len(rows) == 0 {
		ui.Info("No sessions")
		return nil
	}

	table := ui.Table([]string{"User", "Stage", "Flow", "Paused", "Gen", "Last Message"})
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	return nil
}

func sessionsShowRun(userID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sess, err := s.GetSession(commandContext(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no session for %s", userID)
	}
	if err != nil {
		return err
	}

	var data []byte
	switch sessionsFormat {
	case "json":
		data, err = json.MarshalIndent(sess, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case "yaml", "":
		// Round-trip through JSON so the YAML keys match the API.
		var generic map[string]any
		raw, jerr := json.Marshal(sess)
		if jerr != nil {
			return jerr
		}
		if jerr := json.Unmarshal(raw, &generic); jerr != nil {
			return jerr
		}
		data, err = yaml.Marshal(generic)
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", sessionsFormat)
	}
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = ui.Out.Write(data)
	return err
}

func sessionsSetPausedRun(userID string, paused bool) error {
	verb := "resume"
	if paused {
		verb = "pause"
	}
	if dryRun {
		ui.DryRunMsg("Would %s session %s", verb, userID)
		return nil
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.coord.Stop()

	sess, err := a.coord.SetPaused(commandContext(), userID, paused)
	if err != nil {
		return err
	}
	if sess.Paused {
		ui.Success("Session %s paused (stage %s)", userID, sess.Stage)
	} else {
		ui.Success("Session %s resumed (stage %s)", userID, sess.Stage)
	}
	return nil
}

func sessionsResetRun(userID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if _, err := s.GetSession(commandContext(), userID); errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no session for %s", userID)
	} else if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete session %s", userID)
		return nil
	}

	if err := s.DeleteSession(commandContext(), userID); err != nil {
		return err
	}
	ui.Success("Session %s deleted", userID)
	return nil
}
