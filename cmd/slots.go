package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/agenda/internal/output"
	"github.com/joescharf/agenda/internal/slots"
)

var (
	slotsDays  int
	eventsDays int
	eventsUser string
)

var slotsCmd = &cobra.Command{
	Use:     "slots",
	Aliases: []string{"availability"},
	Short:   "Show free appointment slots",
	Long: `Show the free appointment slots inside the booking horizon, using the
same business hours and calendar the assistant offers to users.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return slotsRun()
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List upcoming calendar events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return eventsRun()
	},
}

func init() {
	slotsCmd.Flags().IntVarP(&slotsDays, "days", "d", 0, "Only show the first N days with free slots")
	eventsCmd.Flags().IntVarP(&eventsDays, "days", "d", 14, "How many days ahead to list")
	eventsCmd.Flags().StringVarP(&eventsUser, "user", "u", "", "Only show events of this user")

	rootCmd.AddCommand(slotsCmd)
	rootCmd.AddCommand(eventsCmd)
}

func slotsRun() error {
	a, err := newAvailability()
	if err != nil {
		return err
	}

	days, err := a.finder.Available(commandContext(), time.Now().In(a.location))
	if err != nil {
		return fmt.Errorf("read calendar: %w", err)
	}
	days = slots.FirstDays(days, slotsDays)

	if len(days) == 0 {
		ui.Warning("No free slots in the next %d days", a.finder.Policy().HorizonDays)
		return nil
	}

	table := ui.Table([]string{"Date", "Weekday", "Free"})
	for _, d := range days {
		table.Append([]string{
			output.Cyan(d.Date.Format("02/01/2006")),
			d.Date.Weekday().String(),
			strings.Join(d.Times(), "  "),
		})
	}
	table.Render()
	return nil
}

func eventsRun() error {
	if eventsDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	a, err := newAvailability()
	if err != nil {
		return err
	}

	now := time.Now().In(a.location)
	events, err := a.store.ListEventsBetween(commandContext(), now, now.AddDate(0, 0, eventsDays))
	if err != nil {
		return err
	}

	table := ui.Table([]string{"When", "User", "Summary", "Where"})
	n := 0
	for _, e := range events {
		if eventsUser != "" && e.UserID != eventsUser {
			continue
		}
		where := e.Location
		if e.VideoURL != "" {
			where = e.VideoURL
		}
		table.Append([]string{
			e.StartAt.In(a.location).Format("02/01/2006 15:04"),
			e.UserID,
			e.Summary,
			where,
		})
		n++
	}
	if n == 0 {
		ui.Info("No events in the next %d days", eventsDays)
		return nil
	}
	table.Render()
	return nil
}
