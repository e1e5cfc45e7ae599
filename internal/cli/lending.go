package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/SouthernStars/book-manage-system/lending"
)

func newBorrowCommand(opts *RootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "borrow <borrower-id> <title-id>",
		Short: "Lend one copy of a title to a borrower",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			borrowerID, err := parseID("borrower", args[0])
			if err != nil {
				return err
			}

			titleID, err := parseID("title", args[1])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				loanDays := a.cfg.Lending.DefaultLoanDays
				if cmd.Flags().Changed("days") {
					loanDays = days
				}

				record, err := a.engine.Borrow(ctx, borrowerID, titleID, loanDays)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), record)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "loan period in days (default from configuration)")

	return cmd
}

func newReturnCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "return <record-id>",
		Short: "Take a copy back and settle the fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := parseID("record", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				record, err := a.engine.ReturnLoan(ctx, recordID)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), record)
			})
		},
	}
}

func newLoansCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "loans [borrower-id]",
		Short: "List the loans a borrower still holds, or every loan in the ledger",
		Long: `With a borrower id, list the loans that borrower still holds (--all adds returned ones).
Without a borrower id, list every loan record in the ledger, returned ones included.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return withApp(cmd, opts, func(ctx context.Context, a *app) error {
					records, err := a.engine.ListLoans(ctx)
					if err != nil {
						return err
					}

					return printJSON(cmd.OutOrStdout(), nonNil(records))
				})
			}

			borrowerID, err := parseID("borrower", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var (
					records []lending.LoanRecord
					err     error
				)

				if all {
					records, err = a.engine.ListLoansByBorrower(ctx, borrowerID)
				} else {
					records, err = a.engine.ListActiveLoans(ctx, borrowerID)
				}
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), nonNil(records))
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include returned loans of the borrower")

	return cmd
}

func newLoanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "loan <record-id>",
		Short: "Show one loan record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordID, err := parseID("record", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				record, err := a.engine.GetLoan(ctx, recordID)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), record)
			})
		},
	}
}

func newOverdueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List loans past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				records, err := a.engine.ListOverdue(ctx)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), nonNil(records))
			})
		},
	}
}

func newStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count active and overdue loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				stats, err := a.engine.Stats(ctx)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

// nonNil makes empty lists print as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}

	return items
}
