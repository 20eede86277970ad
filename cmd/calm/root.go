package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ashureev/seven-days-calm/internal/domain"
	"github.com/ashureev/seven-days-calm/internal/tracker"
)

type options struct {
	statePath string
	apiURL    string
	userID    string
	origin    string
	debug     bool
}

// eventLog writes tracker events to the console logger.
type eventLog struct{}

func (eventLog) Push(e domain.Event) error {
	log.Debug().
		Str("event", e.Name).
		Str("event_id", e.ID).
		Str("user_id", e.UserID).
		Interface("payload", e.Payload).
		Msg("analytics event")
	return nil
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "calm",
		Short:         "Track the 7 Days to Calm challenge",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
			log.Logger = log.Output(zerolog.ConsoleWriter{
				Out:        cmd.ErrOrStderr(),
				TimeFormat: "2006-01-02 15:04:05",
				NoColor:    true,
			})
			if opts.debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.statePath, "state", getEnv("CALM_STATE", "./data/calm-client.db"), "Path to the local challenge state file")
	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api", getEnv("CALM_API_URL", "http://localhost:4000"), "Base URL of the calm server")
	rootCmd.PersistentFlags().StringVar(&opts.userID, "user", getEnv("CALM_USER_ID", domain.DefaultUserID), "User ID sent to the server")
	rootCmd.PersistentFlags().StringVar(&opts.origin, "origin", os.Getenv("CALM_ORIGIN"), "Origin header sent with signed URL requests")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Log every analytics event")

	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newCompleteCmd(opts))
	rootCmd.AddCommand(newResetCmd(opts))
	rootCmd.AddCommand(newSkipCmd(opts))
	rootCmd.AddCommand(newSetDayCmd(opts))
	rootCmd.AddCommand(newWidgetCmd(opts))
	rootCmd.AddCommand(newSessionCmd(opts))
	rootCmd.AddCommand(newRemindCmd(opts))

	return rootCmd
}

// withTracker opens the state file, initializes a tracker and runs fn.
func withTracker(opts *options, fn func(t *tracker.Tracker) error) error {
	st, err := tracker.OpenBolt(opts.statePath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close state file")
		}
	}()

	t := tracker.New(st, eventLog{},
		tracker.WithUserID(opts.userID),
		tracker.WithLogger(newSlogLogger(log.Logger)),
	)
	if err := t.Init(); err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}
	return fn(t)
}

func formatStart(t time.Time) string {
	if t.IsZero() {
		return "not started"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
