package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ashureev/seven-days-calm/internal/convai"
	"github.com/ashureev/seven-days-calm/internal/domain"
	"github.com/ashureev/seven-days-calm/internal/tracker"
)

func printStatus(w io.Writer, t *tracker.Tracker) {
	theme := t.Theme()
	fmt.Fprintf(w, "Day %d of %d: %s\n", theme.Day, domain.MaxDay, theme.Title)
	fmt.Fprintf(w, "  %s\n", theme.Description)
	fmt.Fprintf(w, "Started: %s\n", formatStart(t.StartedAt()))

	var row strings.Builder
	for _, p := range t.Progress() {
		switch {
		case p.Completed:
			row.WriteString("[x]")
		case p.Unlocked:
			row.WriteString("[>]")
		default:
			row.WriteString("[ ]")
		}
	}
	fmt.Fprintf(w, "Progress: %s\n", row.String())
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current day and progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTracker(opts, func(t *tracker.Tracker) error {
				printStatus(cmd.OutOrStdout(), t)
				r, ok, err := t.Reminder()
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintf(cmd.OutOrStdout(), "Reminder: %s %s\n", r.Time, r.Label)
				}
				return nil
			})
		},
	}
}

func newCompleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "complete [day]",
		Short: "Mark a day complete and unlock the next one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(opts, func(t *tracker.Tracker) error {
				day := t.Day()
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("day must be a number: %w", err)
					}
					day = n
				}
				next, err := t.Complete(day)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Day %d complete. Now on Day %d: %s\n", day, next, domain.ThemeFor(next).Title)
				return nil
			})
		},
	}
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Start the challenge over from Day 1",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTracker(opts, func(t *tracker.Tracker) error {
				notice, err := t.Reset()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), notice.Message)
				notice.Dismiss()
				return nil
			})
		},
	}
}

// promptConfirm asks a yes/no question on in.
func promptConfirm(in io.Reader, out io.Writer) tracker.ConfirmFunc {
	return func(from, to int) bool {
		fmt.Fprintf(out, "Jump from Day %d to Day %d? [y/N] ", from, to)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func newSkipCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Jump to the day implied by the calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTracker(opts, func(t *tracker.Tracker) error {
				confirm := promptConfirm(cmd.InOrStdin(), cmd.OutOrStdout())
				if yes {
					confirm = func(int, int) bool { return true }
				}
				res, err := t.SkipToToday(confirm)
				if err != nil {
					return err
				}
				switch {
				case res.Jumped():
					fmt.Fprintf(cmd.OutOrStdout(), "Skipped to Day %d\n", res.To)
				case res.To == res.From:
					fmt.Fprintf(cmd.OutOrStdout(), "Already on today's day (Day %d)\n", res.From)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "Staying on Day %d\n", res.From)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip without asking")
	return cmd
}

func newSetDayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set-day <day>",
		Short: "Move to a specific day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("day must be a number: %w", err)
			}
			return withTracker(opts, func(t *tracker.Tracker) error {
				day, err := t.SetDay(n)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Now on Day %d: %s\n", day, domain.ThemeFor(day).Title)
				return nil
			})
		},
	}
}

// attrElement collects widget attributes.
type attrElement map[string]string

func (a attrElement) SetAttribute(name, value string) { a[name] = value }

func newWidgetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "widget",
		Short: "Print the attributes pushed onto the voice widget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTracker(opts, func(t *tracker.Tracker) error {
				el := attrElement{}
				b := tracker.NewBinding(t)
				b.Attach(el)
				defer b.Detach()

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(el)
			})
		},
	}
}

func newSessionCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Fetch a signed session URL for the current day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTracker(opts, func(t *tracker.Tracker) error {
				client := convai.NewClient(opts.apiURL, convai.WithUserID(opts.userID), convai.WithOrigin(opts.origin))
				loader := tracker.NewSessionLoader(client, nil, tracker.WithLoaderLogger(newSlogLogger(log.Logger)))

				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()

				log.Debug().Int("day", t.Day()).Str("api", opts.apiURL).Msg("fetching signed url")
				url, err := loader.Load(ctx, t.Day())
				fmt.Fprintln(cmd.OutOrStdout(), loader.Status())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Request timeout")
	return cmd
}

func newRemindCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remind <HH:mm> <label>",
		Short: "Save a daily reminder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Reminder{Time: args[0], Label: strings.Join(args[1:], " ")}
			return withTracker(opts, func(t *tracker.Tracker) error {
				if err := t.SaveReminder(r); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reminder saved: %s %s\n", r.Time, r.Label)
				return nil
			})
		},
	}
}
