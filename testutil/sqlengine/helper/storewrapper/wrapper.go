package storewrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/SouthernStars/book-manage-system/lending/sqlengine"
	"github.com/SouthernStars/book-manage-system/testutil/sqlengine/config"
)

// Adapter type constants
const (
	typeSQLite  = "sqlite"
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

// Wrapper abstracts over the different adapter types.
type Wrapper interface {
	GetStore() *sqlengine.Store
	Close()
}

// SQLiteWrapper wraps a store on a temporary SQLite file.
type SQLiteWrapper struct {
	db    *sql.DB
	store *sqlengine.Store
}

func (w *SQLiteWrapper) GetStore() *sqlengine.Store {
	return w.store
}

func (w *SQLiteWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	pool   *pgxpool.Pool
	store  *sqlengine.Store
	tables tableSet
}

func (w *PGXPoolWrapper) GetStore() *sqlengine.Store {
	return w.store
}

func (w *PGXPoolWrapper) Close() {
	_, _ = w.pool.Exec(context.Background(), w.tables.dropStatement())
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	db     *sql.DB
	store  *sqlengine.Store
	tables tableSet
}

func (w *SQLDBWrapper) GetStore() *sqlengine.Store {
	return w.store
}

func (w *SQLDBWrapper) Close() {
	_, _ = w.db.Exec(w.tables.dropStatement())
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	db     *sqlx.DB
	store  *sqlengine.Store
	tables tableSet
}

func (w *SQLXWrapper) GetStore() *sqlengine.Store {
	return w.store
}

func (w *SQLXWrapper) Close() {
	_, _ = w.db.Exec(w.tables.dropStatement())
	_ = w.db.Close() // ignore error
}

type tableSet struct {
	titles    string
	borrowers string
	loans     string
}

func uniqueTableSet() tableSet {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	return tableSet{
		titles:    "titles_" + suffix,
		borrowers: "borrowers_" + suffix,
		loans:     "loan_records_" + suffix,
	}
}

func (ts tableSet) option() sqlengine.Option {
	return sqlengine.WithTableNames(ts.titles, ts.borrowers, ts.loans)
}

func (ts tableSet) dropStatement() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s, %s, %s", ts.loans, ts.borrowers, ts.titles)
}

// AdapterTypeFromEnv returns the normalized ADAPTER_TYPE, defaulting to sqlite.
func AdapterTypeFromEnv() string {
	adapterType := strings.ToLower(os.Getenv("ADAPTER_TYPE"))
	if adapterType == "" {
		return typeSQLite
	}

	return adapterType
}

// UsesPostgres reports whether the tests run against PostgreSQL.
func UsesPostgres() bool {
	return AdapterTypeFromEnv() != typeSQLite
}

// CreateWrapperWithTestConfig creates a migrated store for the adapter named by ADAPTER_TYPE.
// Extra options are applied after the wrapper's own ones.
func CreateWrapperWithTestConfig(t testing.TB, options ...sqlengine.Option) Wrapper {
	t.Helper()

	var wrapper Wrapper

	switch adapterType := AdapterTypeFromEnv(); adapterType {
	case typeSQLite:
		db, err := sqlengine.OpenSQLite(config.SQLiteTestPath(t))
		require.NoError(t, err, "error opening sqlite in test setup")

		store, err := sqlengine.NewStoreFromSQLite(db, options...)
		require.NoError(t, err, "error creating store")

		wrapper = &SQLiteWrapper{db: db, store: store}

	case typePGXPool:
		pool := config.PostgresPGXPoolTestConfig()
		tables := uniqueTableSet()

		store, err := sqlengine.NewStoreFromPGXPool(pool, append([]sqlengine.Option{tables.option()}, options...)...)
		require.NoError(t, err, "error creating store")

		wrapper = &PGXPoolWrapper{pool: pool, store: store, tables: tables}

	case typeSQLDB:
		db := config.PostgresSQLDBTestConfig()
		tables := uniqueTableSet()

		store, err := sqlengine.NewStoreFromSQLDB(db, append([]sqlengine.Option{tables.option()}, options...)...)
		require.NoError(t, err, "error creating store")

		wrapper = &SQLDBWrapper{db: db, store: store, tables: tables}

	case typeSQLXDB:
		db := config.PostgresSQLXTestConfig()
		tables := uniqueTableSet()

		store, err := sqlengine.NewStoreFromSQLX(db, append([]sqlengine.Option{tables.option()}, options...)...)
		require.NoError(t, err, "error creating store")

		wrapper = &SQLXWrapper{db: db, store: store, tables: tables}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", adapterType))
	}

	require.NoError(t, wrapper.GetStore().Migrate(context.Background()), "error migrating schema")

	return wrapper
}
