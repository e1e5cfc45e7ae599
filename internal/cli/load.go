package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SouthernStars/book-manage-system/internal/loadgen"
)

type loadOutput struct {
	loadgen.Stats
	Conserved bool `json:"inventory_conserved"`
}

func newLoadCommand(opts *RootOptions) *cobra.Command {
	config := loadgen.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Generate concurrent lending traffic and check inventory afterwards",
		Long: `Seed fresh titles and borrowers, then borrow, return, add and withdraw copies
at a fixed rate until --duration elapsed or the process is interrupted.
Afterwards every seeded title is checked: available copies plus copies on loan
must equal its total.

Example:
  lendingctl load --rate 100 --duration 1m --titles 10 --copies 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if !cmd.Flags().Changed("loan-days") {
					config.LoanDays = a.cfg.Lending.DefaultLoanDays
				}

				generator, err := loadgen.New(a.store, a.engine, config, a.logger)
				if err != nil {
					return &ExitError{Code: ExitCommandError, Err: err}
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				if err := generator.Seed(ctx); err != nil {
					return err
				}

				stats, err := generator.Run(ctx)
				if err != nil {
					return err
				}

				verifyErr := generator.Verify(context.WithoutCancel(ctx))
				if verifyErr != nil && !errors.Is(verifyErr, loadgen.ErrInventoryNotConserved) {
					return verifyErr
				}

				if err := printJSON(cmd.OutOrStdout(), loadOutput{Stats: stats, Conserved: verifyErr == nil}); err != nil {
					return err
				}

				if verifyErr != nil {
					return &ExitError{Code: ExitFailure, Err: verifyErr}
				}

				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&config.Rate, "rate", config.Rate, "scenarios started per second")
	flags.DurationVar(&config.Duration, "duration", config.Duration, "stop after this long (0 runs until interrupted)")
	flags.IntVar(&config.Titles, "titles", config.Titles, "number of titles to seed")
	flags.IntVar(&config.CopiesPerTitle, "copies", config.CopiesPerTitle, "copies per seeded title")
	flags.IntVar(&config.Borrowers, "borrowers", config.Borrowers, "number of borrowers to seed")
	flags.IntVar(&config.LoanDays, "loan-days", config.LoanDays, "loan period (default from configuration)")
	flags.IntVar(&config.CirculationWeight, "circulation-weight", config.CirculationWeight, "percentage of scenarios that add or withdraw copies")
	flags.DurationVar(&config.ReportInterval, "report-interval", config.ReportInterval, "interval between progress logs (0 disables them)")

	return cmd
}
