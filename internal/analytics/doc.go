// Package analytics persists portfolio traffic events (page visits, button clicks,
// time on page) and computes the aggregate views served to the site owner.
//
// Two database/sql drivers are supported:
//
//   - pgx (github.com/jackc/pgx/v5/stdlib) for PostgreSQL in production
//   - libsql (github.com/tursodatabase/go-libsql) for a local SQLite file, Turso, or :memory: in tests
//
// Queries are written once with ? placeholders and rebound per Dialect. Timestamps are
// stored as integer unix milliseconds so ordering, cutoffs and day bucketing behave the
// same on both engines.
package analytics
