package analytics

import "time"

// Visit is one page view reported by the frontend
type Visit struct {
	Page         string
	Referrer     string
	UserAgent    string
	IPAddress    string
	VisitedAt    time.Time
	ScreenWidth  *int
	ScreenHeight *int
}

// Click is one tracked button or link press
type Click struct {
	Button      string
	Page        string
	Destination *string
	ClickedAt   time.Time
}

// TimeSpent is the dwell time reported when a visitor leaves a page
type TimeSpent struct {
	Page      string
	Seconds   float64
	TrackedAt time.Time
}

// Recorded is the row id and stored timestamp of a new event
type Recorded struct {
	ID int64
	At time.Time
}

type Overview struct {
	TotalVisits    int64 `json:"totalVisits"`
	UniqueDays     int64 `json:"uniqueDays"`
	UniqueVisitors int64 `json:"uniqueVisitors"`
}

type PageVisits struct {
	Page           string `json:"page"`
	Visits         int64  `json:"visits"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

type ReferrerCount struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

type ButtonClicks struct {
	ButtonName  string  `json:"button_name"`
	Destination *string `json:"destination"`
	Clicks      int64   `json:"clicks"`
}

type DailyActivity struct {
	Date           string `json:"date"`
	Visits         int64  `json:"visits"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

type PageTime struct {
	Page       string  `json:"page"`
	AvgSeconds float64 `json:"avg_seconds"`
	MinSeconds float64 `json:"min_seconds"`
	MaxSeconds float64 `json:"max_seconds"`
}

type DeviceCount struct {
	DeviceType string `json:"device_type"`
	Count      int64  `json:"count"`
}

// Stats is the full dashboard payload
type Stats struct {
	Overview        Overview        `json:"overview"`
	VisitsByPage    []PageVisits    `json:"visitsByPage"`
	TopReferrers    []ReferrerCount `json:"topReferrers"`
	ButtonClicks    []ButtonClicks  `json:"buttonClicks"`
	RecentActivity  []DailyActivity `json:"recentActivity"`
	AvgTimeSpent    []PageTime      `json:"avgTimeSpent"`
	DeviceBreakdown []DeviceCount   `json:"deviceBreakdown"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

// LiveVisit is a recent page view with its age relative to the query time
type LiveVisit struct {
	Page       string    `json:"page"`
	Referrer   string    `json:"referrer"`
	VisitedAt  time.Time `json:"visited_at"`
	SecondsAgo float64   `json:"seconds_ago"`
}

const (
	// DefaultReferrer is stored when the frontend reports none
	DefaultReferrer = "direct"

	// LiveWindow and LiveLimit bound the live feed
	LiveWindow = 24 * time.Hour
	LiveLimit  = 50

	// RecentActivityDays is the span of the daily activity series
	RecentActivityDays = 30

	// TopReferrersLimit caps the referrer breakdown
	TopReferrersLimit = 10
)
