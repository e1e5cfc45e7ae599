package loadgen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/SouthernStars/book-manage-system/lending"
)

const (
	scenarioCirculation = "circulation"
	scenarioLending     = "lending"

	operationTimeout = 5 * time.Second
)

// errRejected marks maintenance requests the catalog refused, such as withdrawing a copy that is on loan.
var errRejected = errors.New("rejected")

var (
	ErrNonPositiveRate       = errors.New("rate must be positive")
	ErrNonPositiveTitles     = errors.New("number of titles must be positive")
	ErrNonPositiveBorrowers  = errors.New("number of borrowers must be positive")
	ErrNegativeCopies        = errors.New("copies per title must not be negative")
	ErrNonPositiveLoanDays   = errors.New("loan days must be positive")
	ErrInvalidWeight         = errors.New("circulation weight must be between 0 and 100")
	ErrNilStore              = errors.New("store must not be nil")
	ErrNilLender             = errors.New("lender must not be nil")
	ErrNotSeeded             = errors.New("load generator was not seeded")
	ErrInventoryNotConserved = errors.New("inventory not conserved")
)

// Store is the catalog side of the lending core the generator seeds and maintains.
type Store interface {
	lending.Transactor
	AddTitle(ctx context.Context, title lending.Title) (lending.Title, error)
	RegisterBorrower(ctx context.Context, borrower lending.Borrower) (lending.Borrower, error)
	AddCopies(ctx context.Context, titleID uuid.UUID, count int) (lending.Title, error)
	RemoveCopies(ctx context.Context, titleID uuid.UUID, count int) (lending.Title, error)
}

// Lender is the part of the lending engine the generator exercises.
type Lender interface {
	Borrow(ctx context.Context, borrowerID, titleID uuid.UUID, loanDays int) (lending.LoanRecord, error)
	ReturnLoan(ctx context.Context, recordID uuid.UUID) (lending.LoanRecord, error)
	ListActiveLoans(ctx context.Context, borrowerID uuid.UUID) ([]lending.LoanRecord, error)
}

// Config controls the shape of the generated traffic.
type Config struct {
	Rate              int           // scenarios started per second
	Duration          time.Duration // zero runs until the context is done
	Titles            int
	CopiesPerTitle    int
	Borrowers         int
	LoanDays          int
	CirculationWeight int // percentage of scenarios that add or remove copies, the rest borrow or return
	ReportInterval    time.Duration
}

// DefaultConfig returns a small, contended workload.
func DefaultConfig() Config {
	return Config{
		Rate:              30,
		Titles:            20,
		CopiesPerTitle:    3,
		Borrowers:         50,
		LoanDays:          14,
		CirculationWeight: 20,
		ReportInterval:    10 * time.Second,
	}
}

func (c Config) validate() error {
	var errs []error

	if c.Rate <= 0 {
		errs = append(errs, ErrNonPositiveRate)
	}
	if c.Titles <= 0 {
		errs = append(errs, ErrNonPositiveTitles)
	}
	if c.Borrowers <= 0 {
		errs = append(errs, ErrNonPositiveBorrowers)
	}
	if c.CopiesPerTitle < 0 {
		errs = append(errs, ErrNegativeCopies)
	}
	if c.LoanDays <= 0 {
		errs = append(errs, ErrNonPositiveLoanDays)
	}
	if c.CirculationWeight < 0 || c.CirculationWeight > 100 {
		errs = append(errs, ErrInvalidWeight)
	}

	return errors.Join(errs...)
}

// Stats summarizes a run. Rejections are requests the lending core refused by its rules,
// Errors are everything else.
type Stats struct {
	Requests      int64         `json:"requests"`
	Rejections    int64         `json:"rejections"`
	Errors        int64         `json:"errors"`
	Borrowed      int64         `json:"borrowed"`
	Returned      int64         `json:"returned"`
	CopiesAdded   int64         `json:"copies_added"`
	CopiesRemoved int64         `json:"copies_removed"`
	Elapsed       time.Duration `json:"elapsed"`
}

type counters struct {
	requests      atomic.Int64
	rejections    atomic.Int64
	errors        atomic.Int64
	borrowed      atomic.Int64
	returned      atomic.Int64
	copiesAdded   atomic.Int64
	copiesRemoved atomic.Int64
}

// Generator orchestrates load against one store and engine.
type Generator struct {
	store  Store
	lender Lender
	config Config
	logger *slog.Logger

	titles    []uuid.UUID
	borrowers []uuid.UUID

	counters  counters
	startTime time.Time
	wg        sync.WaitGroup
}

// New creates a Generator. A nil logger discards log output.
func New(store Store, lender Lender, config Config, logger *slog.Logger) (*Generator, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	if lender == nil {
		return nil, ErrNilLender
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Generator{store: store, lender: lender, config: config, logger: logger}, nil
}

// Seed catalogs the configured titles and registers the borrowers the scenarios pick from.
func (g *Generator) Seed(ctx context.Context) error {
	g.titles = make([]uuid.UUID, 0, g.config.Titles)
	for i := range g.config.Titles {
		title, err := g.store.AddTitle(ctx, lending.Title{
			Name:        fmt.Sprintf("Load Test Title %d", i+1),
			Author:      "Load Generator",
			TotalCopies: g.config.CopiesPerTitle,
		})
		if err != nil {
			return fmt.Errorf("seeding titles: %w", err)
		}

		g.titles = append(g.titles, title.ID)
	}

	g.borrowers = make([]uuid.UUID, 0, g.config.Borrowers)
	for i := range g.config.Borrowers {
		borrower, err := g.store.RegisterBorrower(ctx, lending.Borrower{
			Name:    fmt.Sprintf("Load Test Borrower %d", i+1),
			Enabled: true,
		})
		if err != nil {
			return fmt.Errorf("seeding borrowers: %w", err)
		}

		g.borrowers = append(g.borrowers, borrower.ID)
	}

	g.logger.InfoContext(ctx, "load generator seeded", "titles", len(g.titles), "borrowers", len(g.borrowers))

	return nil
}

// Run starts scenarios at the configured rate until the context is done or the configured
// duration elapsed, waits for in-flight scenarios and returns the final stats.
func (g *Generator) Run(ctx context.Context) (Stats, error) {
	if len(g.titles) == 0 || len(g.borrowers) == 0 {
		return Stats{}, ErrNotSeeded
	}

	if g.config.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Duration)
		defer cancel()
	}

	g.startTime = time.Now()

	interval := time.Second / time.Duration(g.config.Rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.logger.InfoContext(ctx, "load generator started",
		"rate", g.config.Rate,
		"interval", interval.String(),
		"circulation_weight", g.config.CirculationWeight,
	)

	if g.config.ReportInterval > 0 {
		g.wg.Add(1)
		go g.reportPeriodically(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			g.wg.Wait()
			stats := g.Stats()
			g.logStats(context.WithoutCancel(ctx), "load generator stopped", stats)

			return stats, nil

		case <-ticker.C:
			g.wg.Add(1)
			go g.executeScenario(ctx)
		}
	}
}

// Stats returns the counters collected so far.
func (g *Generator) Stats() Stats {
	return Stats{
		Requests:      g.counters.requests.Load(),
		Rejections:    g.counters.rejections.Load(),
		Errors:        g.counters.errors.Load(),
		Borrowed:      g.counters.borrowed.Load(),
		Returned:      g.counters.returned.Load(),
		CopiesAdded:   g.counters.copiesAdded.Load(),
		CopiesRemoved: g.counters.copiesRemoved.Load(),
		Elapsed:       time.Since(g.startTime),
	}
}

// Verify checks for every seeded title that available copies plus held copies equal the total.
func (g *Generator) Verify(ctx context.Context) error {
	var violations []error

	for _, titleID := range g.titles {
		var (
			title   lending.Title
			holding int
		)

		err := g.store.WithinTransaction(ctx, func(ctx context.Context, tx lending.TxScope) error {
			var err error
			if title, err = tx.GetTitle(ctx, titleID); err != nil {
				return err
			}

			holding, err = tx.CountActiveLoansByTitle(ctx, titleID)

			return err
		})
		if err != nil {
			return fmt.Errorf("verifying title %s: %w", titleID, err)
		}

		if title.AvailableCopies < 0 || title.AvailableCopies+holding != title.TotalCopies {
			violations = append(violations, fmt.Errorf("%w: title %s has %d available, %d on loan, %d total",
				ErrInventoryNotConserved, titleID, title.AvailableCopies, holding, title.TotalCopies))
		}
	}

	return errors.Join(violations...)
}

func (g *Generator) executeScenario(ctx context.Context) {
	defer g.wg.Done()

	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	scenario := g.selectScenario()

	var err error
	switch scenario {
	case scenarioCirculation:
		err = g.runCirculationScenario(opCtx)
	default:
		err = g.runLendingScenario(opCtx)
	}

	g.counters.requests.Add(1)

	switch {
	case err == nil:
	case ctx.Err() != nil:
		// run is shutting down
	case isRejection(err):
		g.counters.rejections.Add(1)
	default:
		g.counters.errors.Add(1)
		g.logger.ErrorContext(ctx, "load scenario failed", "scenario", scenario, "error", err.Error())
	}
}

// isRejection reports whether the lending core refused the request by its rules.
// Invariant violations are rejections only when the catalog refused a withdrawal up front.
func isRejection(err error) bool {
	if errors.Is(err, errRejected) {
		return true
	}

	kind, ok := lending.KindOf(err)
	if !ok {
		return false
	}

	return kind != lending.KindInvariantViolation
}

func (g *Generator) selectScenario() string {
	if rand.Intn(100) < g.config.CirculationWeight { //nolint:gosec // load shape only
		return scenarioCirculation
	}

	return scenarioLending
}

func (g *Generator) runCirculationScenario(ctx context.Context) error {
	titleID := g.randomTitle()

	if rand.Intn(2) == 0 { //nolint:gosec // load shape only
		if _, err := g.store.AddCopies(ctx, titleID, 1); err != nil {
			return err
		}
		g.counters.copiesAdded.Add(1)

		return nil
	}

	if _, err := g.store.RemoveCopies(ctx, titleID, 1); err != nil {
		if errors.Is(err, lending.ErrInventoryUnderflow) {
			return fmt.Errorf("%w: %w", errRejected, err)
		}

		return err
	}
	g.counters.copiesRemoved.Add(1)

	return nil
}

// runLendingScenario borrows a random title or, half of the time, returns one of the borrower's
// loans. A borrower without loans borrows instead.
func (g *Generator) runLendingScenario(ctx context.Context) error {
	borrowerID := g.randomBorrower()

	if rand.Intn(2) == 0 { //nolint:gosec // load shape only
		loans, err := g.lender.ListActiveLoans(ctx, borrowerID)
		if err != nil {
			return err
		}

		if len(loans) > 0 {
			if _, err := g.lender.ReturnLoan(ctx, loans[rand.Intn(len(loans))].ID); err != nil { //nolint:gosec // load shape only
				return err
			}
			g.counters.returned.Add(1)

			return nil
		}
	}

	if _, err := g.lender.Borrow(ctx, borrowerID, g.randomTitle(), g.config.LoanDays); err != nil {
		return err
	}
	g.counters.borrowed.Add(1)

	return nil
}

func (g *Generator) randomTitle() uuid.UUID {
	return g.titles[rand.Intn(len(g.titles))] //nolint:gosec // load shape only
}

func (g *Generator) randomBorrower() uuid.UUID {
	return g.borrowers[rand.Intn(len(g.borrowers))] //nolint:gosec // load shape only
}

func (g *Generator) reportPeriodically(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.logStats(ctx, "load generator progress", g.Stats())
		}
	}
}

func (g *Generator) logStats(ctx context.Context, msg string, stats Stats) {
	rps := 0.0
	if stats.Elapsed > 0 {
		rps = float64(stats.Requests) / stats.Elapsed.Seconds()
	}

	g.logger.InfoContext(ctx, msg,
		"requests", stats.Requests,
		"requests_per_second", fmt.Sprintf("%.1f", rps),
		"rejections", stats.Rejections,
		"errors", stats.Errors,
		"borrowed", stats.Borrowed,
		"returned", stats.Returned,
		"elapsed", stats.Elapsed.Truncate(time.Millisecond).String(),
		"goroutines", runtime.NumGoroutine(),
	)
}
