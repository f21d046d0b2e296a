package analytics

import (
	"strconv"
	"strings"
	"time"
)

// Dialect covers the few places PostgreSQL and SQLite disagree
type Dialect interface {
	Name() string
	// Rebind rewrites ? placeholders into the driver's native form
	Rebind(query string) string
	// DayBucket returns an expression producing YYYY-MM-DD (UTC) for a unix ms column
	DayBucket(col string) string
	// Schema returns the CREATE statements for every table and index
	Schema() []string
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return driverPgx }

func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (postgresDialect) DayBucket(col string) string {
	return "to_char(to_timestamp(" + col + " / 1000.0) AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
}

func (postgresDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS page_visits (
			id BIGSERIAL PRIMARY KEY,
			page TEXT NOT NULL,
			referrer TEXT NOT NULL DEFAULT 'direct',
			user_agent TEXT,
			ip_address TEXT,
			screen_width INTEGER,
			screen_height INTEGER,
			visited_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS button_clicks (
			id BIGSERIAL PRIMARY KEY,
			button_name TEXT NOT NULL,
			page TEXT,
			destination TEXT,
			clicked_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS time_tracking (
			id BIGSERIAL PRIMARY KEY,
			page TEXT NOT NULL,
			time_spent_seconds DOUBLE PRECISION NOT NULL,
			tracked_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_page_visits_visited_at ON page_visits(visited_at);`,
		`CREATE INDEX IF NOT EXISTS idx_button_clicks_clicked_at ON button_clicks(clicked_at);`,
		`CREATE INDEX IF NOT EXISTS idx_time_tracking_tracked_at ON time_tracking(tracked_at);`,
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return driverLibsql }

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) DayBucket(col string) string {
	return "strftime('%Y-%m-%d', " + col + " / 1000, 'unixepoch')"
}

func (sqliteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS page_visits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			page TEXT NOT NULL,
			referrer TEXT NOT NULL DEFAULT 'direct',
			user_agent TEXT,
			ip_address TEXT,
			screen_width INTEGER,
			screen_height INTEGER,
			visited_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS button_clicks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			button_name TEXT NOT NULL,
			page TEXT,
			destination TEXT,
			clicked_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS time_tracking (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			page TEXT NOT NULL,
			time_spent_seconds REAL NOT NULL,
			tracked_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_page_visits_visited_at ON page_visits(visited_at);`,
		`CREATE INDEX IF NOT EXISTS idx_button_clicks_clicked_at ON button_clicks(clicked_at);`,
		`CREATE INDEX IF NOT EXISTS idx_time_tracking_tracked_at ON time_tracking(tracked_at);`,
	}
}

// toMillis and fromMillis convert at the storage boundary, everything above it is time.Time
func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
