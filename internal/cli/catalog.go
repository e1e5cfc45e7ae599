package cli

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SouthernStars/book-manage-system/lending"
)

func parseID(kind, arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, commandError("invalid %s id %q", kind, arg)
	}

	return id, nil
}

func parseCount(arg string) (int, error) {
	count, err := strconv.Atoi(arg)
	if err != nil {
		return 0, commandError("invalid copy count %q", arg)
	}

	return count, nil
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.store.Migrate(ctx); err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "migrated", "dialect": string(a.store.Dialect())})
			})
		},
	}
}

func newTitleCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "title",
		Short: "Manage catalog titles and their copies",
	}

	var title lending.Title

	add := &cobra.Command{
		Use:   "add",
		Short: "Catalog a title with all of its copies available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				added, err := a.store.AddTitle(ctx, title)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), added)
			})
		},
	}
	add.Flags().StringVar(&title.ISBN, "isbn", "", "ISBN")
	add.Flags().StringVar(&title.Name, "name", "", "title name")
	add.Flags().StringVar(&title.Author, "author", "", "author")
	add.Flags().IntVar(&title.TotalCopies, "copies", 1, "number of copies owned")
	_ = add.MarkFlagRequired("name")

	show := &cobra.Command{
		Use:   "show <title-id>",
		Short: "Show a title with its copy counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			titleID, err := parseID("title", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				found, err := a.engine.GetTitle(ctx, titleID)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), found)
			})
		},
	}

	available := &cobra.Command{
		Use:   "available",
		Short: "List titles with at least one copy on the shelf",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				titles, err := a.engine.ListAvailableTitles(ctx)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), titles)
			})
		},
	}

	cmd.AddCommand(add, show, available,
		newCopiesCommand(opts, "add-copies", "Add copies to a title",
			func(ctx context.Context, a *app, titleID uuid.UUID, count int) (lending.Title, error) {
				return a.store.AddCopies(ctx, titleID, count)
			}),
		newCopiesCommand(opts, "remove-copies", "Withdraw copies that are on the shelf",
			func(ctx context.Context, a *app, titleID uuid.UUID, count int) (lending.Title, error) {
				return a.store.RemoveCopies(ctx, titleID, count)
			}),
	)

	return cmd
}

func newCopiesCommand(
	opts *RootOptions,
	use, short string,
	change func(ctx context.Context, a *app, titleID uuid.UUID, count int) (lending.Title, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <title-id> <count>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			titleID, err := parseID("title", args[0])
			if err != nil {
				return err
			}

			count, err := parseCount(args[1])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				title, err := change(ctx, a, titleID, count)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), title)
			})
		},
	}
}

func newBorrowerCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "borrower",
		Short: "Manage borrowers",
	}

	var (
		name     string
		disabled bool
	)

	add := &cobra.Command{
		Use:   "add",
		Short: "Register a borrower",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				borrower, err := a.store.RegisterBorrower(ctx, lending.Borrower{Name: name, Enabled: !disabled})
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), borrower)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "borrower name")
	add.Flags().BoolVar(&disabled, "disabled", false, "register the borrower as disabled")
	_ = add.MarkFlagRequired("name")

	cmd.AddCommand(add,
		newBorrowerToggleCommand(opts, "enable", true),
		newBorrowerToggleCommand(opts, "disable", false),
	)

	return cmd
}

func newBorrowerToggleCommand(opts *RootOptions, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <borrower-id>",
		Short: "Allow or forbid new loans for a borrower",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			borrowerID, err := parseID("borrower", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				borrower, err := a.store.SetBorrowerEnabled(ctx, borrowerID, enabled)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), borrower)
			})
		},
	}
}
