// Package storewrapper provides test utilities for abstracting over the database adapters of the lending store.
//
// The adapter is chosen by the ADAPTER_TYPE environment variable: "sqlite" (the default) uses a
// temporary SQLite file per wrapper, while "pgx.pool", "sql.db" and "sqlx.db" connect to the PostgreSQL
// database named by LENDING_TEST_POSTGRES_DSN. On PostgreSQL every wrapper works on its own set of
// tables, which are dropped again on Close, so tests never see each other's rows.
//
// Usage:
//
//	wrapper := CreateWrapperWithTestConfig(t)
//	defer wrapper.Close()
//
//	store := wrapper.GetStore()
package storewrapper
