package analyticshttp

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/keithlinneman/splash-api/internal/analytics"
	"github.com/keithlinneman/splash-api/internal/httpmw"
	"github.com/keithlinneman/splash-api/internal/log"
	"github.com/keithlinneman/splash-api/internal/ratelimit"
)

type visitRequest struct {
	Page         string     `json:"page"`
	Referrer     string     `json:"referrer"`
	UserAgent    string     `json:"userAgent"`
	Timestamp    *time.Time `json:"timestamp"`
	ScreenWidth  *int       `json:"screenWidth"`
	ScreenHeight *int       `json:"screenHeight"`
}

type visitResponse struct {
	Success   bool      `json:"success"`
	VisitID   int64     `json:"visitId"`
	Timestamp time.Time `json:"timestamp"`
}

type clickRequest struct {
	Button      string     `json:"button"`
	Page        string     `json:"page"`
	Destination *string    `json:"destination"`
	Timestamp   *time.Time `json:"timestamp"`
}

type clickResponse struct {
	Success   bool      `json:"success"`
	ClickID   int64     `json:"clickId"`
	Timestamp time.Time `json:"timestamp"`
}

type timeSpentRequest struct {
	Page      string     `json:"page"`
	TimeSpent *float64   `json:"timeSpent"`
	Timestamp *time.Time `json:"timestamp"`
}

type timeSpentResponse struct {
	Success    bool  `json:"success"`
	TrackingID int64 `json:"trackingId"`
}

type statsResponse struct {
	Success bool            `json:"success"`
	Stats   analytics.Stats `json:"stats"`
}

type liveResponse struct {
	Success    bool                  `json:"success"`
	LiveVisits []analytics.LiveVisit `json:"liveVisits"`
	Count      int                   `json:"count"`
}

type clearRequest struct {
	OlderThanDays *int `json:"olderThanDays"`
}

type clearResponse struct {
	Success        bool  `json:"success"`
	DeletedRecords int64 `json:"deletedRecords"`
	OlderThanDays  int   `json:"olderThanDays"`
}

func orZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// nilIfEmpty maps "" and whitespace to nil so the column stays NULL
func nilIfEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// HandleVisit records a page view, POST /analytics/visit
func (api *API) HandleVisit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req visitRequest
	if err := decodeBody(r, &req, false); err != nil {
		decodeFailed(w, err)
		return
	}
	if strings.TrimSpace(req.Page) == "" {
		badRequest(w, "page is required")
		return
	}

	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	ip, ok := ratelimit.Identify(r, api.sources...)
	if !ok {
		ip = ""
	}

	rec, err := api.store.RecordVisit(ctx, analytics.Visit{
		Page:         req.Page,
		Referrer:     req.Referrer,
		UserAgent:    ua,
		IPAddress:    ip,
		VisitedAt:    orZero(req.Timestamp),
		ScreenWidth:  req.ScreenWidth,
		ScreenHeight: req.ScreenHeight,
	}, api.now())
	api.record(EventVisit, err)
	if err != nil {
		api.fail(ctx, w, err, "Failed to track visit")
		return
	}

	httpmw.WriteJSON(w, http.StatusCreated, visitResponse{Success: true, VisitID: rec.ID, Timestamp: rec.At})
}

// HandleClick records a button press, POST /analytics/click
func (api *API) HandleClick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req clickRequest
	if err := decodeBody(r, &req, false); err != nil {
		decodeFailed(w, err)
		return
	}
	if strings.TrimSpace(req.Button) == "" {
		badRequest(w, "button is required")
		return
	}

	rec, err := api.store.RecordClick(ctx, analytics.Click{
		Button:      req.Button,
		Page:        req.Page,
		Destination: nilIfEmpty(req.Destination),
		ClickedAt:   orZero(req.Timestamp),
	}, api.now())
	api.record(EventClick, err)
	if err != nil {
		api.fail(ctx, w, err, "Failed to track click")
		return
	}

	httpmw.WriteJSON(w, http.StatusCreated, clickResponse{Success: true, ClickID: rec.ID, Timestamp: rec.At})
}

// HandleTimeSpent records dwell time, POST /analytics/time-spent
func (api *API) HandleTimeSpent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req timeSpentRequest
	if err := decodeBody(r, &req, false); err != nil {
		decodeFailed(w, err)
		return
	}
	if strings.TrimSpace(req.Page) == "" {
		badRequest(w, "page is required")
		return
	}
	if req.TimeSpent == nil || *req.TimeSpent < 0 {
		badRequest(w, "timeSpent must be a non-negative number of seconds")
		return
	}

	rec, err := api.store.RecordTimeSpent(ctx, analytics.TimeSpent{
		Page:      req.Page,
		Seconds:   *req.TimeSpent,
		TrackedAt: orZero(req.Timestamp),
	}, api.now())
	api.record(EventTimeSpent, err)
	if err != nil {
		api.fail(ctx, w, err, "Failed to track time spent")
		return
	}

	httpmw.WriteJSON(w, http.StatusCreated, timeSpentResponse{Success: true, TrackingID: rec.ID})
}

// HandleStats serves the dashboard aggregate, GET /analytics/stats
func (api *API) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := api.store.Stats(ctx, api.now())
	if err != nil {
		api.fail(ctx, w, err, "Failed to fetch statistics")
		return
	}
	httpmw.WriteJSON(w, http.StatusOK, statsResponse{Success: true, Stats: st})
}

// HandleLive serves the last day of visits, GET /analytics/live
func (api *API) HandleLive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	visits, err := api.store.Live(ctx, api.now())
	if err != nil {
		api.fail(ctx, w, err, "Failed to fetch live analytics")
		return
	}
	if visits == nil {
		visits = []analytics.LiveVisit{}
	}
	httpmw.WriteJSON(w, http.StatusOK, liveResponse{Success: true, LiveVisits: visits, Count: len(visits)})
}

// maxClearDays is the largest day count a time.Duration can hold
const maxClearDays = int(math.MaxInt64 / int64(24*time.Hour))

// clearHorizon clamps days so the duration cannot wrap, a clamped horizon
// reaches back past any stored event and deletes nothing
func clearHorizon(days int) time.Duration {
	if days > maxClearDays {
		days = maxClearDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// HandleClear deletes events older than olderThanDays, DELETE /analytics/clear
func (api *API) HandleClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req clearRequest
	if err := decodeBody(r, &req, true); err != nil {
		decodeFailed(w, err)
		return
	}
	days := DefaultClearDays
	if req.OlderThanDays != nil {
		days = *req.OlderThanDays
	}
	if days < 0 {
		badRequest(w, "olderThanDays must be >= 0")
		return
	}

	deleted, err := api.store.Clear(ctx, clearHorizon(days), api.now())
	api.record(EventClear, err)
	if err != nil {
		api.fail(ctx, w, err, "Failed to clear old data")
		return
	}

	log.FromContext(ctx).Info(ctx, "analytics data cleared", "older_than_days", days, "deleted", deleted)
	httpmw.WriteJSON(w, http.StatusOK, clearResponse{Success: true, DeletedRecords: deleted, OlderThanDays: days})
}
