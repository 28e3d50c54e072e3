package cmd

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal containers

	"github.com/spf13/viper"

	"github.com/joescharf/agenda/internal/calendar"
	"github.com/joescharf/agenda/internal/coordinator"
	"github.com/joescharf/agenda/internal/dialogue"
	"github.com/joescharf/agenda/internal/messaging"
	"github.com/joescharf/agenda/internal/slots"
	"github.com/joescharf/agenda/internal/store"
	"github.com/joescharf/agenda/internal/watchdog"
)

// app is the wired set of services behind serve, mcp and the admin commands.
type app struct {
	store    store.Store
	location *time.Location
	calendar *calendar.Local
	finder   *slots.Finder
	engine   *dialogue.Engine
	coord    *coordinator.Coordinator
}

func loadLocation() (*time.Location, error) {
	name := viper.GetString("timezone")
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday, "dom": time.Sunday, "domingo": time.Sunday,
	"mon": time.Monday, "monday": time.Monday, "seg": time.Monday, "segunda": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday, "ter": time.Tuesday, "terca": time.Tuesday, "terça": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday, "qua": time.Wednesday, "quarta": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday, "qui": time.Thursday, "quinta": time.Thursday,
	"fri": time.Friday, "friday": time.Friday, "sex": time.Friday, "sexta": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday, "sab": time.Saturday, "sáb": time.Saturday, "sabado": time.Saturday, "sábado": time.Saturday,
}

// parseWeekdays accepts English or Portuguese day names. Entries may also be
// comma separated, as they arrive from a single environment variable.
func parseWeekdays(names []string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, entry := range names {
		for _, name := range strings.Split(entry, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			d, ok := weekdayNames[name]
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", name)
			}
			days = append(days, d)
		}
	}
	return days, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func slotPolicy(loc *time.Location) (slots.Policy, error) {
	weekdays, err := parseWeekdays(viper.GetStringSlice("slots.weekdays"))
	if err != nil {
		return slots.Policy{}, err
	}
	horizon := viper.GetInt("slots.horizon_days")
	if horizon < slots.MinBookingHorizon || horizon > slots.MaxBookingHorizon {
		return slots.Policy{}, fmt.Errorf("slots.horizon_days must be between %d and %d, got %d",
			slots.MinBookingHorizon, slots.MaxBookingHorizon, horizon)
	}
	p := slots.Policy{
		Weekdays:    weekdays,
		StartTimes:  splitList(viper.GetStringSlice("slots.start_times")),
		Duration:    viper.GetDuration("slots.duration"),
		HorizonDays: horizon,
		Location:    loc,
	}
	if err := p.Validate(); err != nil {
		return slots.Policy{}, fmt.Errorf("slots: %w", err)
	}
	return p, nil
}

func newSender() (messaging.Gateway, error) {
	switch driver := viper.GetString("messaging.driver"); driver {
	case "console", "":
		return messaging.NewConsole(ui), nil
	case "webhook":
		url := viper.GetString("messaging.webhook_url")
		if url == "" {
			return nil, fmt.Errorf("messaging.webhook_url is required for the webhook driver")
		}
		return messaging.NewWebhook(url, viper.GetString("messaging.token"), viper.GetDuration("messaging.timeout")), nil
	default:
		return nil, fmt.Errorf("unknown messaging driver %q (want console or webhook)", driver)
	}
}

// newAvailability builds the pieces needed to read the calendar without a
// running conversation engine.
func newAvailability() (*app, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	loc, err := loadLocation()
	if err != nil {
		return nil, err
	}
	policy, err := slotPolicy(loc)
	if err != nil {
		return nil, err
	}

	cal := calendar.NewLocal(s, calendar.WithVideoBaseURL(viper.GetString("bot.video_base_url")))
	finder, err := slots.NewFinder(policy, cal)
	if err != nil {
		return nil, err
	}
	return &app{store: s, location: loc, calendar: cal, finder: finder}, nil
}

// newApp wires the full conversation stack from configuration.
func newApp(opts ...coordinator.Option) (*app, error) {
	a, err := newAvailability()
	if err != nil {
		return nil, err
	}
	sender, err := newSender()
	if err != nil {
		return nil, err
	}

	cfg := dialogue.DefaultConfig(a.location)
	cfg.MaxDays = viper.GetInt("slots.max_days")
	cfg.MaxSlots = viper.GetInt("slots.max_slots")
	cfg.SlotDuration = a.finder.Policy().Duration
	cfg.LookupWindow = time.Duration(viper.GetInt("bot.lookup_window_days")) * 24 * time.Hour
	cfg.OfficeAddress = viper.GetString("bot.office_address")
	cfg.RecheckBooking = viper.GetBool("bot.recheck_booking")
	a.engine = dialogue.New(a.calendar, a.finder, cfg)

	a.coord = coordinator.New(a.store, a.engine, sender, coordinator.Config{
		PauseToken:  viper.GetString("bot.pause_token"),
		ResumeToken: viper.GetString("bot.resume_token"),
		Timeouts: watchdog.Config{
			Inactivity: viper.GetDuration("watchdog.inactivity_timeout"),
			Final:      viper.GetDuration("watchdog.final_timeout"),
		},
	}, opts...)
	return a, nil
}
