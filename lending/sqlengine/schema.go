package sqlengine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Schema version tracked in SQLite's user_version:
// 1 - titles, borrowers, loan_records with the one-active-loan-per-pair index
const currentSchemaVersion = 1

// Migrate creates the tables and indexes if they do not exist. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	start := time.Now()

	for _, statement := range s.schemaStatements() {
		if _, err := s.db.Exec(ctx, statement); err != nil {
			s.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, statement)
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if s.dialect == DialectSQLite {
		if _, err := s.db.Exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	s.logOperation(ctx, logMsgSchemaMigrated, logAttrDialect, string(s.dialect), logAttrDurationMS, s.toMilliseconds(time.Since(start)))

	return nil
}

func (s *Store) schemaStatements() []string {
	idType := "UUID"
	if s.dialect == DialectSQLite {
		idType = "TEXT"
	}

	replacer := strings.NewReplacer(
		"{titles}", s.titlesTable,
		"{borrowers}", s.borrowersTable,
		"{loans}", s.loansTable,
		"{id}", idType,
	)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS {titles} (
	id {id} PRIMARY KEY,
	isbn TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	total_copies INTEGER NOT NULL CHECK (total_copies >= 0),
	available_copies INTEGER NOT NULL CHECK (available_copies >= 0),
	CHECK (available_copies <= total_copies)
)`,
		`CREATE TABLE IF NOT EXISTS {borrowers} (
	id {id} PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	enabled BOOLEAN NOT NULL DEFAULT TRUE
)`,
		`CREATE TABLE IF NOT EXISTS {loans} (
	id {id} PRIMARY KEY,
	borrower_id {id} NOT NULL REFERENCES {borrowers} (id),
	title_id {id} NOT NULL REFERENCES {titles} (id),
	borrow_date DATE NOT NULL,
	due_date DATE NOT NULL,
	return_date DATE NULL,
	status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'OVERDUE', 'RETURNED')),
	fine_cents BIGINT NULL CHECK (fine_cents >= 0),
	CHECK (due_date > borrow_date)
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS {loans}_one_active_per_pair
	ON {loans} (borrower_id, title_id) WHERE status IN ('ACTIVE', 'OVERDUE')`,
		`CREATE INDEX IF NOT EXISTS {loans}_status_due_date ON {loans} (status, due_date)`,
		`CREATE INDEX IF NOT EXISTS {loans}_title_id ON {loans} (title_id)`,
	}

	for i, statement := range statements {
		statements[i] = replacer.Replace(statement)
	}

	return statements
}
