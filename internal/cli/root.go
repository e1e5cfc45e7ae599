package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/SouthernStars/book-manage-system/internal/config"
)

const dateLayout = "2006-01-02"

// RootOptions holds the global flags. Flags override the configuration file and the environment.
type RootOptions struct {
	ConfigPath string
	Adapter    string
	DSN        string
	LogLevel   string
	LogFormat  string
	Today      string

	// OTelEndpoint enables OTLP export to this host:port.
	OTelEndpoint string

	spanProcessors []sdktrace.SpanProcessor
}

// CommandOption customizes the command tree built by NewRootCommand.
type CommandOption func(*RootOptions)

// WithSpanProcessor registers processor on the tracer provider of every command, whether or not OTLP export is enabled.
func WithSpanProcessor(processor sdktrace.SpanProcessor) CommandOption {
	return func(o *RootOptions) {
		o.spanProcessors = append(o.spanProcessors, processor)
	}
}

// NewRootCommand creates the lendingctl command tree.
func NewRootCommand(options ...CommandOption) *cobra.Command {
	opts := &RootOptions{}
	for _, option := range options {
		option(opts)
	}

	cmd := &cobra.Command{
		Use:   "lendingctl",
		Short: "Operate the library lending core",
		Long: `lendingctl lends and takes back book copies, keeps the catalog's copy counts
and reclassifies overdue loans.

Configuration is read from --config (YAML), then LENDING_* environment variables,
then the flags below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&opts.Adapter, "adapter", "", "database adapter (sqlite|pgx.pool|sql.db|sqlx.db)")
	flags.StringVar(&opts.DSN, "dsn", "", "sqlite file path or postgres connection string")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	flags.StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")
	flags.StringVar(&opts.Today, "today", "", "treat this date (YYYY-MM-DD) as today")
	flags.StringVar(&opts.OTelEndpoint, "otel-endpoint", "", "export traces and metrics to this OTLP gRPC endpoint (host:port)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newTitleCommand(opts))
	cmd.AddCommand(newBorrowerCommand(opts))
	cmd.AddCommand(newBorrowCommand(opts))
	cmd.AddCommand(newReturnCommand(opts))
	cmd.AddCommand(newLoansCommand(opts))
	cmd.AddCommand(newLoanCommand(opts))
	cmd.AddCommand(newOverdueCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newLoadCommand(opts))

	return cmd
}

// resolveConfig loads file and environment configuration and applies the flags the user set.
func (o *RootOptions) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("adapter") {
		cfg.Database.Adapter = o.Adapter
	}
	if flags.Changed("dsn") {
		cfg.Database.DSN = o.DSN
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.LogFormat
	}
	if flags.Changed("otel-endpoint") {
		cfg.Observability.Enabled = true
		cfg.Observability.Endpoint = o.OTelEndpoint
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// clock returns time.Now, or a fixed clock at noon UTC of --today.
func (o *RootOptions) clock() (func() time.Time, error) {
	if o.Today == "" {
		return time.Now, nil
	}

	today, err := parseDate("today", o.Today)
	if err != nil {
		return nil, err
	}

	noon := today.Add(12 * time.Hour)

	return func() time.Time { return noon }, nil
}

func parseDate(flag, value string) (time.Time, error) {
	date, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be a date like 2024-01-31, got %q", flag, value)
	}

	return date, nil
}
