// Package config provides database configuration for lending store tests.
//
// It contains factory functions for the PostgreSQL adapters the store supports
// (pgx.Pool, sql.DB, sqlx.DB) and for a throwaway SQLite file.
// The PostgreSQL DSN is read from LENDING_TEST_POSTGRES_DSN.
package config
