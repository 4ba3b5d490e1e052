// Package cli wires flags, environment defaults, logging and exit codes
// around one sync run.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/someengineering/fixattiosync/internal/attio"
	"github.com/someengineering/fixattiosync/internal/fix"
	"github.com/someengineering/fixattiosync/internal/sync"
)

// Process exit codes. Only fatal conditions change the code; per-record
// failures are logged and leave the run successful.
const (
	ExitOK              = 0
	ExitThreshold       = 1
	ExitSourceData      = 2
	ExitDestinationData = 3
)

// Options holds every flag of the root command, resolved against the
// conventional Postgres and Attio environment variables.
type Options struct {
	Database  string
	User      string
	Password  string
	Host      string
	Port      int
	APIKey    string
	Threshold int
	LogLevel  string
}

// exitError pins a specific exit code onto a failure while keeping the
// original error chain intact.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fixattiosync: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return ExitThreshold
}

func NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:           "fixattiosync",
		Short:         "Sync Fix users and workspaces into Attio",
		Long:          "One-directional batch reconciliation of the Fix database into the Attio CRM mirror.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !ValidDBName(opts.Database) {
				return fmt.Errorf("invalid database name %q", opts.Database)
			}
			if !ValidHostname(opts.Host) && !ValidIP(opts.Host) && opts.Host != "localhost" {
				return fmt.Errorf("invalid database host %q", opts.Host)
			}
			if opts.APIKey == "" {
				return errors.New("an Attio API key is required (--api-key or ATTIO_API_KEY)")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := buildLogger(opts.LogLevel)
			if err != nil {
				return err
			}
			log.Info().Msg("starting fix attio sync")
			err = runSync(cmd.Context(), opts, log)
			if err != nil {
				log.Error().Err(err).Msg("sync failed")
			} else {
				log.Info().Msg("shutdown complete")
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Database, "db", envDefault("PGDATABASE", "fix-database"), "source database name")
	flags.StringVar(&opts.User, "user", envDefault("PGUSER", "fixuser"), "source database user")
	flags.StringVar(&opts.Password, "password", os.Getenv("PGPASSWORD"), "source database password")
	flags.StringVar(&opts.Host, "host", envDefault("PGHOST", "localhost"), "source database host")
	flags.IntVar(&opts.Port, "port", intEnvDefault("PGPORT", 5432), "source database port")
	flags.StringVar(&opts.APIKey, "api-key", os.Getenv("ATTIO_API_KEY"), "Attio API key")
	flags.IntVar(&opts.Threshold, "modification-threshold", sync.DefaultModificationThreshold,
		"abort when more than this percentage of destination records would be touched")
	flags.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	return cmd
}

// runSync is the whole pipeline: hydrate source, hydrate destination,
// diff, apply. Each fatal failure is tagged with its exit code here.
func runSync(ctx context.Context, opts *Options, log zerolog.Logger) error {
	repository := fix.NewRepository(fix.RepositoryOptions{
		Database: opts.Database,
		User:     opts.User,
		Password: opts.Password,
		Host:     opts.Host,
		Port:     opts.Port,
		Logger:   log,
	})
	snapshot, err := repository.Hydrate(ctx)
	if err != nil {
		return &exitError{code: ExitSourceData, err: err}
	}

	client := attio.NewClient(attio.ClientOptions{APIKey: opts.APIKey, Logger: log})
	store := attio.NewStore(client, log)
	if err := store.Hydrate(ctx); err != nil {
		if errors.Is(err, attio.ErrEmptyCollection) {
			return &exitError{code: ExitDestinationData, err: err}
		}
		return err
	}

	syncer := sync.NewSyncer(snapshot, store, opts.Threshold, log)
	return syncer.Run(ctx)
}

func buildLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger(), nil
}

func envDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func intEnvDefault(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
