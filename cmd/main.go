package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"calplan/internal/api"
	"calplan/internal/caldav"
	"calplan/internal/events"
	"calplan/internal/models"
	"calplan/internal/syncer"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calplan",
		Usage: "Connect Google calendars, keep a local copy in sync and plan work against it.",
		Commands: []*cli.Command{
			serveCommand(),
			syncCommand(),
			connectCommand(),
			mirrorCommand(),
			userCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func userFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "user", Usage: "ID of the local user.", Required: true}
}

func parseUser(c *cli.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.String("user"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --user %q: %w", c.String("user"), err)
	}
	return id, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := newApplication(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := api.NewServer(api.Deps{
				Config:   cfg,
				Repo:     app.store,
				Accounts: app.accounts,
				Events:   app.events,
				Syncer:   app.syncer,
				Tasks:    app.tasks,
				Ping:     app.ping,
				Logger:   logger,
			})
			httpServer := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP server listening", "addr", cfg.ListenAddr)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("http server failed: %w", err)
			case <-ctx.Done():
			}

			logger.Info("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Pull calendars and events for a user's connected accounts.",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{Name: "calendar", Usage: "Only re-pull this calendar source ID."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run sync every N seconds."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			userID, err := parseUser(c)
			if err != nil {
				return err
			}
			app, err := newApplication(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			run := func(ctx context.Context) error {
				if raw := c.String("calendar"); raw != "" {
					calID, err := uuid.Parse(raw)
					if err != nil {
						return fmt.Errorf("invalid --calendar %q: %w", raw, err)
					}
					if _, err := app.store.GetCalendarForUser(ctx, userID, calID); err != nil {
						return err
					}
					n, err := app.syncer.SyncOneCalendar(ctx, calID)
					if err != nil {
						return err
					}
					logger.Info("Calendar synced", "calendarID", calID, "events", n)
					return nil
				}
				res, err := app.syncer.SyncAllAccountsForUser(ctx, userID)
				if err != nil {
					return err
				}
				logSyncResult(logger, res)
				return nil
			}

			// --watch keeps running until interrupted.
			if c.IsSet("watch") {
				ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return watch(ctx, time.Duration(c.Int("watch"))*time.Second, run, logger)
			}

			logger.Info("Running a single sync cycle.")
			if err := run(c.Context); err != nil {
				return fmt.Errorf("single sync cycle failed: %w", err)
			}
			return nil
		},
	}
}

// watch runs fn at once and then every interval until ctx is done. A failed
// cycle is logged and the next one still runs.
func watch(ctx context.Context, interval time.Duration, fn func(context.Context) error, logger *slog.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %v", interval)
	}
	logger.Info("Starting watcher.", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil {
			logger.Error("Sync cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("Watcher stopped.")
			return nil
		case <-ticker.C:
		}
	}
}

func logSyncResult(logger *slog.Logger, res syncer.Result) {
	logger.Info("Sync finished",
		"calendars", res.CalendarsSynced,
		"events", res.EventsSynced,
		"duration", res.CompletedAt.Sub(res.StartedAt),
	)
	for _, f := range res.Failures {
		logger.Warn("Account failed to sync", "accountID", f.AccountID, "error", f.Err)
	}
	for _, id := range res.ReauthRequired {
		logger.Warn("Account must be reconnected, run the connect command", "accountID", id)
	}
}

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Connect a Google account to a user from the terminal.",
		Flags: []cli.Flag{userFlag()},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.GoogleConfigured() {
				return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
			}
			userID, err := parseUser(c)
			if err != nil {
				return err
			}
			app, err := newApplication(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			logger.Info("Starting Google authentication flow.")
			authURL, err := app.accounts.AuthorizeURL(c.Context, userID)
			if err != nil {
				return err
			}
			u, err := url.Parse(authURL)
			if err != nil {
				return fmt.Errorf("invalid authorization URL: %w", err)
			}

			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)
			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			code, _ := reader.ReadString('\n')
			code = strings.TrimSpace(code)

			account, err := app.accounts.Connect(c.Context, u.Query().Get("state"), code)
			if err != nil {
				return fmt.Errorf("unable to connect account: %w", err)
			}
			logger.Info("Successfully connected account.", "accountID", account.ID, "providerAccountID", account.ProviderAccountID)
			return nil
		},
	}
}

func mirrorCommand() *cli.Command {
	return &cli.Command{
		Name:  "mirror",
		Usage: "Write a user's cached events in the sync window to a CalDAV calendar.",
		Flags: []cli.Flag{userFlag()},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.CalDAVUsername == "" || cfg.CalDAVPassword == "" || cfg.CalDAVCalendar == "" {
				return errors.New("CALDAV_USERNAME, CALDAV_PASSWORD and CALDAV_CALENDAR must be set")
			}
			userID, err := parseUser(c)
			if err != nil {
				return err
			}
			app, err := newApplication(cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			client, err := caldav.NewClient(c.Context, logger, caldav.Options{
				Endpoint:     cfg.CalDAVURL,
				Username:     cfg.CalDAVUsername,
				Password:     cfg.CalDAVPassword,
				CalendarName: cfg.CalDAVCalendar,
				Timeout:      cfg.ProviderTimeout,
			})
			if err != nil {
				return fmt.Errorf("failed to create caldav client: %w", err)
			}

			w := syncer.WindowAt(time.Now(), cfg.SyncDaysBack, cfg.SyncDaysForward)
			list, err := app.events.List(c.Context, userID, events.Filter{StartMin: &w.Min, StartMax: &w.Max})
			if err != nil {
				return err
			}
			report := client.Mirror(c.Context, list)
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d events failed to mirror", report.Failed, report.Failed+report.Written)
			}
			return nil
		},
	}
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage local users.",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a local user and print its ID.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name"},
				},
				Action: func(c *cli.Context) error {
					cfg, logger, err := loadConfig()
					if err != nil {
						return err
					}
					app, err := newApplication(cfg, logger)
					if err != nil {
						return err
					}
					defer app.Close()

					u := &models.User{Email: strings.TrimSpace(c.String("email")), Name: c.String("name"), IsActive: true}
					if err := app.store.CreateUser(c.Context, u); err != nil {
						return fmt.Errorf("failed to create user: %w", err)
					}
					fmt.Println(u.ID)
					return nil
				},
			},
		},
	}
}
