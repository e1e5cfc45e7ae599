package cli_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/SouthernStars/book-manage-system/internal/cli"
	"github.com/SouthernStars/book-manage-system/internal/config"
	"github.com/SouthernStars/book-manage-system/lending"
)

type lendingctl struct {
	t   *testing.T
	dsn string
}

func givenLendingctl(t *testing.T) *lendingctl {
	t.Helper()

	for _, key := range []string{
		config.EnvAdapter, config.EnvDSN, config.EnvLogLevel, config.EnvLogFormat, config.EnvFinePerDay,
		config.EnvOTelEnabled, config.EnvOTelEndpoint, config.EnvOTelInsecure, config.EnvOTelServiceName,
	} {
		t.Setenv(key, "")
	}

	ctl := &lendingctl{t: t, dsn: filepath.Join(t.TempDir(), "lending.db")}
	ctl.mustRun("migrate")

	return ctl
}

func (c *lendingctl) run(args ...string) (string, error) {
	c.t.Helper()

	return c.runWith(nil, args...)
}

func (c *lendingctl) runWith(options []cli.CommandOption, args ...string) (string, error) {
	c.t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := cli.NewRootCommand(options...)
	cmd.SetArgs(append([]string{"--dsn", c.dsn, "--log-level", "error"}, args...))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.Execute()

	return stdout.String(), err
}

func (c *lendingctl) mustRun(args ...string) string {
	c.t.Helper()

	out, err := c.run(args...)
	require.NoError(c.t, err, "lendingctl %v", args)

	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()

	var v T
	require.NoError(t, jsoniter.UnmarshalFromString(out, &v), "output was: %s", out)

	return v
}

func Test_RootCommand_HasAllCommands(t *testing.T) {
	cmd := cli.NewRootCommand()

	for _, path := range [][]string{
		{"migrate"}, {"title", "add"}, {"title", "show"}, {"title", "available"}, {"title", "add-copies"},
		{"title", "remove-copies"}, {"borrower", "add"}, {"borrower", "enable"}, {"borrower", "disable"},
		{"borrow"}, {"return"}, {"loans"}, {"loan"}, {"overdue"}, {"stats"}, {"sweep"}, {"load"},
	} {
		found, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}

	for _, flag := range []string{"config", "adapter", "dsn", "log-level", "log-format", "today", "otel-endpoint"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "global flag --%s should exist", flag)
	}
}

func Test_Lendingctl_LendsUntilTheShelfIsEmpty(t *testing.T) {
	ctl := givenLendingctl(t)

	title := decode[lending.Title](t, ctl.mustRun("title", "add", "--isbn", "978-0-13-468599-1", "--name", "The Go Programming Language", "--author", "Donovan, Kernighan", "--copies", "2"))
	ada := decode[lending.Borrower](t, ctl.mustRun("borrower", "add", "--name", "Ada"))
	bob := decode[lending.Borrower](t, ctl.mustRun("borrower", "add", "--name", "Bob"))
	cyd := decode[lending.Borrower](t, ctl.mustRun("borrower", "add", "--name", "Cyd"))

	record := decode[lending.LoanRecord](t, ctl.mustRun("--today", "2024-01-01", "borrow", ada.ID.String(), title.ID.String()))
	assert.Equal(t, "2024-01-15", record.DueDate.Format("2006-01-02"), "default loan period comes from configuration")

	_, err := ctl.run("--today", "2024-01-01", "borrow", ada.ID.String(), title.ID.String(), "--days", "7")
	assert.ErrorIs(t, err, lending.ErrAlreadyBorrowed)
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(err))

	ctl.mustRun("--today", "2024-01-02", "borrow", bob.ID.String(), title.ID.String(), "--days", "14")

	_, err = ctl.run("borrow", cyd.ID.String(), title.ID.String())
	assert.ErrorIs(t, err, lending.ErrNoCopyAvailable)

	shown := decode[lending.Title](t, ctl.mustRun("title", "show", title.ID.String()))
	assert.Equal(t, 0, shown.AvailableCopies)
	assert.Equal(t, 2, shown.TotalCopies)

	available := decode[[]lending.Title](t, ctl.mustRun("title", "available"))
	assert.Empty(t, available)
}

func Test_Lendingctl_ReturnSweepAndReports(t *testing.T) {
	ctl := givenLendingctl(t)

	title := decode[lending.Title](t, ctl.mustRun("title", "add", "--name", "Designing Data-Intensive Applications", "--copies", "2"))
	ada := decode[lending.Borrower](t, ctl.mustRun("borrower", "add", "--name", "Ada"))
	bob := decode[lending.Borrower](t, ctl.mustRun("borrower", "add", "--name", "Bob"))

	adaLoan := decode[lending.LoanRecord](t, ctl.mustRun("--today", "2024-01-01", "borrow", ada.ID.String(), title.ID.String(), "--days", "9"))
	bobLoan := decode[lending.LoanRecord](t, ctl.mustRun("--today", "2024-01-01", "borrow", bob.ID.String(), title.ID.String(), "--days", "14"))

	overdue := decode[[]lending.LoanRecord](t, ctl.mustRun("--today", "2024-01-12", "overdue"))
	require.Len(t, overdue, 1)
	assert.Equal(t, adaLoan.ID, overdue[0].ID)

	stats := decode[lending.LoanStats](t, ctl.mustRun("--today", "2024-01-12", "stats"))
	assert.Equal(t, lending.LoanStats{ActiveLoans: 2, OverdueLoans: 1}, stats)

	sweep := decode[map[string]any](t, ctl.mustRun("sweep", "--as-of", "2024-01-12"))
	assert.Equal(t, "2024-01-12", sweep["as_of"])
	assert.EqualValues(t, 1, sweep["reclassified"])

	swept := decode[lending.LoanRecord](t, ctl.mustRun("loan", adaLoan.ID.String()))
	assert.Equal(t, lending.StatusOverdue, swept.Status)
	assert.Equal(t, lending.StatusActive, decode[lending.LoanRecord](t, ctl.mustRun("loan", bobLoan.ID.String())).Status)

	returned := decode[lending.LoanRecord](t, ctl.mustRun("--today", "2024-01-15", "return", adaLoan.ID.String()))
	assert.Equal(t, lending.StatusReturned, returned.Status)
	require.NotNil(t, returned.FineAmount)
	assert.InDelta(t, 2.5, *returned.FineAmount, 0.0001)

	_, err := ctl.run("return", adaLoan.ID.String())
	assert.ErrorIs(t, err, lending.ErrAlreadyReturned)

	assert.Empty(t, decode[[]lending.LoanRecord](t, ctl.mustRun("loans", ada.ID.String())))
	assert.Len(t, decode[[]lending.LoanRecord](t, ctl.mustRun("loans", ada.ID.String(), "--all")), 1)

	ledger := decode[[]lending.LoanRecord](t, ctl.mustRun("loans"))
	require.Len(t, ledger, 2)
	assert.ElementsMatch(t, []uuid.UUID{adaLoan.ID, bobLoan.ID}, []uuid.UUID{ledger[0].ID, ledger[1].ID})
}

func Test_Lendingctl_CatalogMaintenance(t *testing.T) {
	ctl := givenLendingctl(t)

	title := decode[lending.Title](t, ctl.mustRun("title", "add", "--name", "Refactoring", "--copies", "1"))
	borrower := decode[lending.Borrower](t, ctl.mustRun("borrower", "add", "--name", "Idle", "--disabled"))
	assert.False(t, borrower.Enabled)

	_, err := ctl.run("borrow", borrower.ID.String(), title.ID.String())
	assert.ErrorIs(t, err, lending.ErrBorrowerDisabled)

	enabled := decode[lending.Borrower](t, ctl.mustRun("borrower", "enable", borrower.ID.String()))
	assert.True(t, enabled.Enabled)
	ctl.mustRun("borrow", borrower.ID.String(), title.ID.String())

	grown := decode[lending.Title](t, ctl.mustRun("title", "add-copies", title.ID.String(), "2"))
	assert.Equal(t, 3, grown.TotalCopies)
	assert.Equal(t, 2, grown.AvailableCopies)

	_, err = ctl.run("title", "remove-copies", title.ID.String(), "3")
	assert.ErrorIs(t, err, lending.ErrInventoryUnderflow)

	shrunk := decode[lending.Title](t, ctl.mustRun("title", "remove-copies", title.ID.String(), "2"))
	assert.Equal(t, 1, shrunk.TotalCopies)
	assert.Equal(t, 0, shrunk.AvailableCopies)
}

func Test_Lendingctl_LoadReportsConservedInventory(t *testing.T) {
	ctl := givenLendingctl(t)

	out := ctl.mustRun("load", "--rate", "100", "--duration", "200ms", "--titles", "2", "--copies", "1", "--borrowers", "3", "--report-interval", "0")

	result := decode[map[string]any](t, out)
	assert.Equal(t, true, result["inventory_conserved"])
	assert.EqualValues(t, 0, result["errors"])

	_, err := ctl.run("load", "--rate", "0")
	assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
}

func Test_Lendingctl_CommandErrors(t *testing.T) {
	ctl := givenLendingctl(t)

	testCases := []struct {
		name string
		args []string
	}{
		{name: "malformed id", args: []string{"loan", "not-a-uuid"}},
		{name: "malformed count", args: []string{"title", "add-copies", "0190a5c2-3b7e-7d4e-9b1a-6a2f3c4d5e6f", "many"}},
		{name: "malformed date", args: []string{"--today", "01/02/2024", "stats"}},
		{name: "unknown adapter", args: []string{"--adapter", "mysql", "stats"}},
		{name: "watch with as-of", args: []string{"sweep", "--watch", "--as-of", "2024-01-01"}},
		{name: "missing config file", args: []string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "stats"}},
		{name: "empty otel endpoint", args: []string{"--otel-endpoint", " ", "stats"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ctl.run(tc.args...)

			require.Error(t, err)
			assert.Equal(t, cli.ExitCommandError, cli.GetExitCode(err))
		})
	}

	_, err := ctl.run("loan", "0190a5c2-3b7e-7d4e-9b1a-6a2f3c4d5e6f")
	assert.ErrorIs(t, err, lending.ErrRecordNotFound)
	assert.Equal(t, cli.ExitFailure, cli.GetExitCode(err))
}

func Test_Lendingctl_ExportsEngineSpans(t *testing.T) {
	ctl := givenLendingctl(t)
	title := decode[lending.Title](t, ctl.mustRun("title", "add", "--name", "Release It!", "--copies", "1"))
	ada := decode[lending.Borrower](t, ctl.mustRun("borrower", "add", "--name", "Ada"))
	recorder := tracetest.NewSpanRecorder()

	_, err := ctl.runWith([]cli.CommandOption{cli.WithSpanProcessor(recorder)},
		"--today", "2024-01-01", "borrow", ada.ID.String(), title.ID.String())
	require.NoError(t, err)

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "lending.engine.borrow" {
			continue
		}

		found = true
		assert.Contains(t, span.Attributes(), attribute.String("lending.outcome", "success"))
		serviceName, ok := span.Resource().Set().Value(semconv.ServiceNameKey)
		assert.True(t, ok, "the resource names the service")
		assert.Equal(t, "lendingctl", serviceName.AsString())
	}
	assert.True(t, found, "the borrow span was exported before the command returned")
}
