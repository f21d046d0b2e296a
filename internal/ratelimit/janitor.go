package ratelimit

import (
	"context"
	"time"
)

const (
	// DefaultSweepInterval is how often the janitor runs
	DefaultSweepInterval = 15 * time.Minute
	// DefaultRetention is how long a counter survives after its window started,
	// independent of any policy window so it never affects decisions
	DefaultRetention = time.Hour
)

// Janitor periodically evicts stale counters from a Store to bound memory
type Janitor struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	// OnSweep is called after each sweep with the number removed and the number left
	OnSweep func(removed, remaining int)
}

type JanitorOption func(*Janitor)

func WithSweepInterval(d time.Duration) JanitorOption {
	return func(j *Janitor) { j.interval = d }
}

func WithRetention(d time.Duration) JanitorOption {
	return func(j *Janitor) { j.retention = d }
}

func WithJanitorClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) { j.now = now }
}

func WithOnSweep(fn func(removed, remaining int)) JanitorOption {
	return func(j *Janitor) { j.OnSweep = fn }
}

func NewJanitor(s Store, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		store:     s,
		interval:  DefaultSweepInterval,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	if j.interval <= 0 {
		j.interval = DefaultSweepInterval
	}
	if j.retention <= 0 {
		j.retention = DefaultRetention
	}
	return j
}

// SweepNow runs a single sweep and returns how many counters were removed
func (j *Janitor) SweepNow() int {
	removed := j.store.Sweep(j.retention, j.now())
	if j.OnSweep != nil {
		j.OnSweep(removed, j.store.Len())
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled, run it in its own goroutine
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.SweepNow()
		}
	}
}

// Start runs the janitor in a goroutine, it stops when ctx is cancelled
func (j *Janitor) Start(ctx context.Context) {
	go j.Run(ctx)
}
