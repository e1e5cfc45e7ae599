package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type sweepOutput struct {
	AsOf         string      `json:"as_of"`
	Examined     int         `json:"examined"`
	Reclassified int         `json:"reclassified"`
	RecordIDs    []uuid.UUID `json:"record_ids"`
}

type sweepOptions struct {
	asOf     string
	watch    bool
	interval time.Duration
}

func newSweepCommand(opts *RootOptions) *cobra.Command {
	sweepOpts := &sweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reclassify loans past their due date as overdue",
		Long: `Reclassify ACTIVE loans whose due date has passed as OVERDUE.

Without --watch a single sweep runs and its result is printed. With --watch the
sweep repeats every --interval until the process is interrupted.

Example:
  lendingctl sweep --as-of 2024-01-31
  lendingctl sweep --watch --interval 30m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, opts, sweepOpts)
		},
	}

	cmd.Flags().StringVar(&sweepOpts.asOf, "as-of", "", "compare due dates against this date (YYYY-MM-DD) instead of today")
	cmd.Flags().BoolVar(&sweepOpts.watch, "watch", false, "keep sweeping on an interval")
	cmd.Flags().DurationVar(&sweepOpts.interval, "interval", 0, "interval between sweeps with --watch (default from configuration)")

	return cmd
}

func runSweep(cmd *cobra.Command, opts *RootOptions, sweepOpts *sweepOptions) error {
	if sweepOpts.watch && sweepOpts.asOf != "" {
		return commandError("--as-of cannot be combined with --watch")
	}

	var asOf time.Time
	if sweepOpts.asOf != "" {
		parsed, err := parseDate("as-of", sweepOpts.asOf)
		if err != nil {
			return &ExitError{Code: ExitCommandError, Err: err}
		}
		asOf = parsed
	}

	return withApp(cmd, opts, func(ctx context.Context, a *app) error {
		if sweepOpts.watch {
			interval := a.cfg.Lending.SweepInterval
			if cmd.Flags().Changed("interval") {
				interval = sweepOpts.interval
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.scanner.Run(ctx, interval); err != nil {
				return &ExitError{Code: ExitCommandError, Err: err}
			}

			return nil
		}

		if asOf.IsZero() {
			clock, err := opts.clock()
			if err != nil {
				return err
			}
			asOf = clock()
		}

		result, err := a.scanner.Sweep(ctx, asOf)
		if err != nil {
			return err
		}

		return printJSON(cmd.OutOrStdout(), sweepOutput{
			AsOf:         result.AsOf.Format(dateLayout),
			Examined:     result.Examined,
			Reclassified: result.Reclassified,
			RecordIDs:    nonNil(result.RecordIDs),
		})
	})
}
