// Package database opens the SQL backend shared by the tier registry, the
// touchpoint ledger and the activity log, and creates their tables.
//
// Queries are written with "?" placeholders and rebound to "$n" for Postgres.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a *sql.DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DialectFor picks the dialect from a DSN. postgres:// and postgresql:// URLs
// select Postgres; anything else is treated as a SQLite DSN.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// Open opens dsn with the matching driver. SQLite connections are limited to a
// single writer and get foreign keys enabled.
func Open(ctx context.Context, dsn string) (*sql.DB, Dialect, error) {
	d := DialectFor(dsn)
	db, err := sql.Open(string(d), dsn)
	if err != nil {
		return nil, d, fmt.Errorf("opening database: %w", err)
	}
	if d == SQLite {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, d, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, d, fmt.Errorf("pinging database: %w", err)
	}
	return db, d, nil
}

// Rebind rewrites "?" placeholders to "$1".."$n" for Postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tiers (
		id            INTEGER PRIMARY KEY,
		name          TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		cadence       TEXT NOT NULL,
		qualification TEXT NOT NULL,
		created_ms    BIGINT NOT NULL DEFAULT 0,
		updated_ms    BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		tier_id      INTEGER,
		created_ms   BIGINT NOT NULL DEFAULT 0,
		updated_ms   BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_customers_tier ON customers (tier_id)`,
	`CREATE TABLE IF NOT EXISTS touchpoints (
		customer_id       TEXT NOT NULL REFERENCES customers (id),
		channel           TEXT NOT NULL,
		last_contacted_ms BIGINT NOT NULL,
		PRIMARY KEY (customer_id, channel)
	)`,
	`CREATE TABLE IF NOT EXISTS contact_activity (
		event_id    TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		occurred_ms BIGINT NOT NULL,
		customer_id TEXT NOT NULL,
		channel     TEXT NOT NULL,
		source_refs TEXT NOT NULL DEFAULT '[]',
		summary     TEXT NOT NULL,
		payload     TEXT,
		PRIMARY KEY (customer_id, occurred_ms, event_id)
	)`,
}

// Migrate creates every table if it does not already exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}
