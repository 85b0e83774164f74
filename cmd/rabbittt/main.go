package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/wpwwhimself/rabbittt/internal/auth"
	"github.com/wpwwhimself/rabbittt/internal/calendar"
	"github.com/wpwwhimself/rabbittt/internal/config"
	"github.com/wpwwhimself/rabbittt/internal/logging"
	"github.com/wpwwhimself/rabbittt/internal/state"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	// Handle maintenance subcommands before the full startup path.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "reset-auth":
			resetAuth()
			return
		case "add-student":
			addStudent(os.Args[2:])
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// resetAuth deletes the stored token so the next run re-consents.
func resetAuth() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	store := auth.NewTokenStore(cfg.TokenFile)
	if err := store.Delete(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("stored token removed from %s\n", store.Path())
}

// addStudent creates a student record without going through the UI.
func addStudent(args []string) {
	if len(args) < 1 || args[0] == "" {
		fmt.Fprintln(os.Stderr, "usage: rabbittt add-student <name> [email]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	records, err := state.Load(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer records.Close()

	st := state.Student{
		ID:        uuid.NewString(),
		Name:      args[0],
		CreatedAt: time.Now(),
	}
	if len(args) > 1 {
		st.Email = args[1]
	}

	if err := records.SaveStudent(st); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("added student %s (%s)\n", st.Name, st.ID)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("rabbittt starting",
		slog.String("version", Version),
		slog.String("redirect_uri", cfg.RedirectURL()),
		slog.Duration("auth_timeout", cfg.AuthTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := state.Load(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening record database: %w", err)
	}
	defer records.Close()

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}

	coordinator, err := auth.NewCoordinator(auth.CoordinatorConfig{
		OAuth:   oauthCfg,
		Store:   auth.NewTokenStore(cfg.TokenFile),
		Timeout: cfg.AuthTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("building coordinator: %w", err)
	}

	// The continuation runs before Authorize returns, so its error can
	// be carried out through the closure.
	var agendaErr error
	err = coordinator.Authorize(ctx, func(client *http.Client) {
		agendaErr = printAgenda(ctx, client, records, logger)
	})
	if err != nil {
		return fmt.Errorf("authorizing: %w", err)
	}

	return agendaErr
}

// printAgenda fetches upcoming calendar events and stored sessions
// concurrently and prints the combined agenda.
func printAgenda(ctx context.Context, client *http.Client, records *state.State, logger *slog.Logger) error {
	lookahead := calendarLookahead(records, logger)

	g, gctx := errgroup.WithContext(ctx)

	var events []calendar.Event
	g.Go(func() error {
		var err error

		events, err = calendar.NewClient(client).Upcoming(gctx, lookahead)
		if err != nil {
			return fmt.Errorf("listing calendar events: %w", err)
		}

		return nil
	})

	var sessions []state.Session
	g.Go(func() error {
		var err error

		sessions, err = records.UpcomingSessions(time.Now(), lookahead)
		if err != nil {
			return fmt.Errorf("listing upcoming sessions: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("agenda assembled",
		slog.Int("events", len(events)),
		slog.Int("sessions", len(sessions)),
	)

	fmt.Println("Upcoming calendar events:")
	if len(events) == 0 {
		fmt.Println("  (none)")
	}
	for _, ev := range events {
		fmt.Printf("  %s  %s\n", ev.Start, ev.Summary)
	}

	fmt.Println("Upcoming sessions:")
	if len(sessions) == 0 {
		fmt.Println("  (none)")
	}
	for _, sess := range sessions {
		student := sess.StudentID
		if st, err := records.GetStudent(sess.StudentID); err == nil && st != nil {
			student = st.Name
		}
		fmt.Printf("  %s  %s (%d min)\n", sess.Start.Format(time.RFC3339), student, sess.Minutes)
	}

	return nil
}

// calendarLookahead reads the agenda size from settings, falling back
// to 10 when the row is missing or not a number.
func calendarLookahead(records *state.State, logger *slog.Logger) int {
	const fallback = 10

	set, err := records.GetSetting("calendar_lookahead")
	if err != nil || set == nil {
		return fallback
	}

	n, err := strconv.Atoi(set.Value)
	if err != nil || n < 1 {
		logger.Warn("invalid calendar_lookahead setting", slog.String("value", set.Value))
		return fallback
	}

	return n
}
