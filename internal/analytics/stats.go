package analytics

import (
	"context"
	"database/sql"
	"time"

	"github.com/keithlinneman/splash-api/internal/xerrors"
)

const referrerSource = `CASE
		WHEN referrer = 'direct' THEN 'Direct Traffic'
		WHEN referrer LIKE '%google%' THEN 'Google'
		WHEN referrer LIKE '%patreon%' THEN 'Patreon'
		WHEN referrer LIKE '%twitter%' OR referrer LIKE '%x.com%' THEN 'Twitter/X'
		WHEN referrer LIKE '%facebook%' THEN 'Facebook'
		WHEN referrer LIKE '%instagram%' THEN 'Instagram'
		ELSE referrer
	END`

const deviceType = `CASE
		WHEN user_agent LIKE '%Mobile%' THEN 'Mobile'
		WHEN user_agent LIKE '%Tablet%' THEN 'Tablet'
		ELSE 'Desktop'
	END`

// Stats computes the dashboard aggregates as of now
func (s *Store) Stats(ctx context.Context, now time.Time) (Stats, error) {
	if err := s.ready(); err != nil {
		return Stats{}, err
	}
	st := Stats{GeneratedAt: now.UTC()}

	steps := []struct {
		name string
		fn   func(context.Context, *Stats, time.Time) error
	}{
		{"overview", s.overview},
		{"visits by page", s.visitsByPage},
		{"top referrers", s.topReferrers},
		{"button clicks", s.buttonClicks},
		{"recent activity", s.recentActivity},
		{"time spent", s.avgTimeSpent},
		{"device breakdown", s.deviceBreakdown},
	}
	for _, step := range steps {
		if err := step.fn(ctx, &st, now); err != nil {
			return Stats{}, xerrors.Wrapf(err, "stats %s", step.name)
		}
	}
	return st, nil
}

func (s *Store) overview(ctx context.Context, st *Stats, _ time.Time) error {
	return s.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT `+s.dialect.DayBucket("visited_at")+`),
			COUNT(DISTINCT ip_address)
		FROM page_visits`,
	).Scan(&st.Overview.TotalVisits, &st.Overview.UniqueDays, &st.Overview.UniqueVisitors)
}

func (s *Store) visitsByPage(ctx context.Context, st *Stats, _ time.Time) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT page, COUNT(*) AS visits, COUNT(DISTINCT ip_address) AS unique_visitors
		FROM page_visits
		GROUP BY page
		ORDER BY visits DESC, page ASC`)
	if err != nil {
		return err
	}
	st.VisitsByPage = []PageVisits{}
	return scanRows(rows, func(r *sql.Rows) error {
		var pv PageVisits
		if err := r.Scan(&pv.Page, &pv.Visits, &pv.UniqueVisitors); err != nil {
			return err
		}
		st.VisitsByPage = append(st.VisitsByPage, pv)
		return nil
	})
}

func (s *Store) topReferrers(ctx context.Context, st *Stats, _ time.Time) error {
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT source, COUNT(*) AS cnt
		FROM (SELECT `+referrerSource+` AS source FROM page_visits) AS classified
		GROUP BY source
		ORDER BY cnt DESC, source ASC
		LIMIT ?`), TopReferrersLimit)
	if err != nil {
		return err
	}
	st.TopReferrers = []ReferrerCount{}
	return scanRows(rows, func(r *sql.Rows) error {
		var rc ReferrerCount
		if err := r.Scan(&rc.Source, &rc.Count); err != nil {
			return err
		}
		st.TopReferrers = append(st.TopReferrers, rc)
		return nil
	})
}

func (s *Store) buttonClicks(ctx context.Context, st *Stats, _ time.Time) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT button_name, destination, COUNT(*) AS clicks
		FROM button_clicks
		GROUP BY button_name, destination
		ORDER BY clicks DESC, button_name ASC`)
	if err != nil {
		return err
	}
	st.ButtonClicks = []ButtonClicks{}
	return scanRows(rows, func(r *sql.Rows) error {
		var (
			bc   ButtonClicks
			dest sql.NullString
		)
		if err := r.Scan(&bc.ButtonName, &dest, &bc.Clicks); err != nil {
			return err
		}
		if dest.Valid {
			d := dest.String
			bc.Destination = &d
		}
		st.ButtonClicks = append(st.ButtonClicks, bc)
		return nil
	})
}

func (s *Store) recentActivity(ctx context.Context, st *Stats, now time.Time) error {
	day := s.dialect.DayBucket("visited_at")
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT `+day+` AS day, COUNT(*) AS visits, COUNT(DISTINCT ip_address) AS unique_visitors
		FROM page_visits
		WHERE visited_at >= ?
		GROUP BY `+day+`
		ORDER BY day DESC`),
		toMillis(now.AddDate(0, 0, -RecentActivityDays)),
	)
	if err != nil {
		return err
	}
	st.RecentActivity = []DailyActivity{}
	return scanRows(rows, func(r *sql.Rows) error {
		var (
			da  DailyActivity
			day any
		)
		if err := r.Scan(&day, &da.Visits, &da.UniqueVisitors); err != nil {
			return err
		}
		d, err := dayString(day)
		if err != nil {
			return err
		}
		da.Date = d
		st.RecentActivity = append(st.RecentActivity, da)
		return nil
	})
}

// dayString formats a day bucket as 2006-01-02. pgx returns the to_char text,
// go-libsql parses date-looking text into a time.Time.
func dayString(v any) (string, error) {
	switch d := v.(type) {
	case time.Time:
		return d.UTC().Format(time.DateOnly), nil
	case string:
		return trimDay(d)
	case []byte:
		return trimDay(string(d))
	default:
		return "", xerrors.Newf("unexpected day bucket type %T", v)
	}
}

func trimDay(s string) (string, error) {
	if len(s) < len(time.DateOnly) {
		return "", xerrors.Newf("malformed day bucket %q", s)
	}
	t, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)])
	if err != nil {
		return "", xerrors.Wrapf(err, "malformed day bucket %q", s)
	}
	return t.Format(time.DateOnly), nil
}

func (s *Store) avgTimeSpent(ctx context.Context, st *Stats, _ time.Time) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT page, AVG(time_spent_seconds), MIN(time_spent_seconds), MAX(time_spent_seconds)
		FROM time_tracking
		GROUP BY page
		ORDER BY page ASC`)
	if err != nil {
		return err
	}
	st.AvgTimeSpent = []PageTime{}
	return scanRows(rows, func(r *sql.Rows) error {
		var pt PageTime
		if err := r.Scan(&pt.Page, &pt.AvgSeconds, &pt.MinSeconds, &pt.MaxSeconds); err != nil {
			return err
		}
		st.AvgTimeSpent = append(st.AvgTimeSpent, pt)
		return nil
	})
}

func (s *Store) deviceBreakdown(ctx context.Context, st *Stats, _ time.Time) error {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT device_type, COUNT(*) AS cnt
		FROM (SELECT `+deviceType+` AS device_type FROM page_visits) AS classified
		GROUP BY device_type
		ORDER BY cnt DESC, device_type ASC`)
	if err != nil {
		return err
	}
	st.DeviceBreakdown = []DeviceCount{}
	return scanRows(rows, func(r *sql.Rows) error {
		var dc DeviceCount
		if err := r.Scan(&dc.DeviceType, &dc.Count); err != nil {
			return err
		}
		st.DeviceBreakdown = append(st.DeviceBreakdown, dc)
		return nil
	})
}

func scanRows(rows *sql.Rows, fn func(*sql.Rows) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
