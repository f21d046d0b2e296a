package analytics

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/keithlinneman/splash-api/internal/xerrors"
)

// RecordVisit stores a page view. A zero VisitedAt is stamped with now, an empty referrer becomes "direct".
func (s *Store) RecordVisit(ctx context.Context, v Visit, now time.Time) (Recorded, error) {
	if err := s.ready(); err != nil {
		return Recorded{}, err
	}
	at := v.VisitedAt
	if at.IsZero() {
		at = now
	}
	ref := strings.TrimSpace(v.Referrer)
	if ref == "" {
		ref = DefaultReferrer
	}

	var (
		id int64
		ms int64
	)
	err := s.DB.QueryRowContext(ctx, s.q(`
		INSERT INTO page_visits (page, referrer, user_agent, visited_at, ip_address, screen_width, screen_height)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id, visited_at`),
		v.Page, ref, nullString(v.UserAgent), toMillis(at), nullString(v.IPAddress),
		nullInt(v.ScreenWidth), nullInt(v.ScreenHeight),
	).Scan(&id, &ms)
	if err != nil {
		return Recorded{}, xerrors.Wrap(err, "insert page visit")
	}
	return Recorded{ID: id, At: fromMillis(ms)}, nil
}

// RecordClick stores a button press
func (s *Store) RecordClick(ctx context.Context, c Click, now time.Time) (Recorded, error) {
	if err := s.ready(); err != nil {
		return Recorded{}, err
	}
	at := c.ClickedAt
	if at.IsZero() {
		at = now
	}

	var dest sql.NullString
	if c.Destination != nil {
		dest = sql.NullString{String: *c.Destination, Valid: true}
	}

	var (
		id int64
		ms int64
	)
	err := s.DB.QueryRowContext(ctx, s.q(`
		INSERT INTO button_clicks (button_name, page, destination, clicked_at)
		VALUES (?, ?, ?, ?)
		RETURNING id, clicked_at`),
		c.Button, nullString(c.Page), dest, toMillis(at),
	).Scan(&id, &ms)
	if err != nil {
		return Recorded{}, xerrors.Wrap(err, "insert button click")
	}
	return Recorded{ID: id, At: fromMillis(ms)}, nil
}

// RecordTimeSpent stores a dwell time sample
func (s *Store) RecordTimeSpent(ctx context.Context, ts TimeSpent, now time.Time) (Recorded, error) {
	if err := s.ready(); err != nil {
		return Recorded{}, err
	}
	at := ts.TrackedAt
	if at.IsZero() {
		at = now
	}

	var (
		id int64
		ms int64
	)
	err := s.DB.QueryRowContext(ctx, s.q(`
		INSERT INTO time_tracking (page, time_spent_seconds, tracked_at)
		VALUES (?, ?, ?)
		RETURNING id, tracked_at`),
		ts.Page, ts.Seconds, toMillis(at),
	).Scan(&id, &ms)
	if err != nil {
		return Recorded{}, xerrors.Wrap(err, "insert time tracking")
	}
	return Recorded{ID: id, At: fromMillis(ms)}, nil
}

// Live returns up to LiveLimit visits from the last LiveWindow, newest first
func (s *Store) Live(ctx context.Context, now time.Time) ([]LiveVisit, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT page, referrer, visited_at
		FROM page_visits
		WHERE visited_at >= ?
		ORDER BY visited_at DESC, id DESC
		LIMIT ?`),
		toMillis(now.Add(-LiveWindow)), LiveLimit,
	)
	if err != nil {
		return nil, xerrors.Wrap(err, "query live visits")
	}
	defer rows.Close()

	out := make([]LiveVisit, 0, LiveLimit)
	for rows.Next() {
		var (
			lv LiveVisit
			ms int64
		)
		if err := rows.Scan(&lv.Page, &lv.Referrer, &ms); err != nil {
			return nil, xerrors.Wrap(err, "scan live visit")
		}
		lv.VisitedAt = fromMillis(ms)
		lv.SecondsAgo = now.Sub(lv.VisitedAt).Seconds()
		out = append(out, lv)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(err, "iterate live visits")
	}
	return out, nil
}

var clearTargets = []struct{ table, col string }{
	{"page_visits", "visited_at"},
	{"button_clicks", "clicked_at"},
	{"time_tracking", "tracked_at"},
}

// Clear deletes events older than now-olderThan from every table in one transaction
// and returns the total number of rows removed
func (s *Store) Clear(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if olderThan < 0 {
		return 0, xerrors.Newf("clear horizon must not be negative, got %s", olderThan)
	}
	cutoff := toMillis(now.Add(-olderThan))

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, xerrors.Wrap(err, "begin clear")
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, t := range clearTargets {
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM "+t.table+" WHERE "+t.col+" < ?"), cutoff)
		if err != nil {
			return 0, xerrors.Wrapf(err, "clear %s", t.table)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, xerrors.Wrapf(err, "rows affected %s", t.table)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, xerrors.Wrap(err, "commit clear")
	}
	return total, nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
