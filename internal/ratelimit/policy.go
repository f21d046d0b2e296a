package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPolicy is returned when a policy is missing its window or quota.
// Policies are built at startup so this should stop the process, never a request.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

const DefaultMessage = "Too many requests, please try again later"

// Policy is the quota applied to a group of routes. Treat as immutable once built.
type Policy struct {
	Name    string
	Window  time.Duration
	Max     int
	Message string
}

// NewPolicy validates and returns a Policy, empty message falls back to DefaultMessage
func NewPolicy(name string, window time.Duration, max int, message string) (Policy, error) {
	p := Policy{
		Name:    strings.TrimSpace(name),
		Window:  window,
		Max:     max,
		Message: strings.TrimSpace(message),
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	if p.Message == "" {
		p.Message = DefaultMessage
	}
	return p, nil
}

// Validate reports every missing field at once
func (p Policy) Validate() error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, fmt.Errorf("%w: name is required", ErrInvalidPolicy))
	}
	if p.Window <= 0 {
		errs = append(errs, fmt.Errorf("%w: %q window must be > 0 (got %s)", ErrInvalidPolicy, p.Name, p.Window))
	}
	if p.Max <= 0 {
		errs = append(errs, fmt.Errorf("%w: %q max must be > 0 (got %d)", ErrInvalidPolicy, p.Name, p.Max))
	}
	return errors.Join(errs...)
}

// Preset names, these are also the keys used in the policy override file
const (
	PolicyAnalytics = "analytics"
	PolicyStats     = "stats"
	PolicyStrict    = "strict"
)

// AnalyticsPolicy is for beacon writes from the frontend, roughly 1/sec sustained
func AnalyticsPolicy() Policy {
	return Policy{
		Name:    PolicyAnalytics,
		Window:  time.Minute,
		Max:     60,
		Message: "Too many analytics events. Please slow down.",
	}
}

// StatsPolicy is for the admin read endpoints
func StatsPolicy() Policy {
	return Policy{
		Name:    PolicyStats,
		Window:  time.Minute,
		Max:     10,
		Message: "Too many stats requests. Please try again later.",
	}
}

// StrictPolicy is for destructive actions
func StrictPolicy() Policy {
	return Policy{
		Name:    PolicyStrict,
		Window:  15 * time.Minute,
		Max:     5,
		Message: "This action is rate limited. Please try again later.",
	}
}

// Presets returns the default policies keyed by name
func Presets() map[string]Policy {
	return map[string]Policy{
		PolicyAnalytics: AnalyticsPolicy(),
		PolicyStats:     StatsPolicy(),
		PolicyStrict:    StrictPolicy(),
	}
}
