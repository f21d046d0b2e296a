package cfg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/splash-api/internal/ratelimit"
	"github.com/keithlinneman/splash-api/internal/xerrors"
)

// policyOverride is one entry of the policy file, unset fields keep the preset value
//
//	policies:
//	  analytics:
//	    window: 1m
//	    max: 120
//	  strict:
//	    message: "Slow down"
type policyOverride struct {
	Window  *time.Duration `yaml:"window"`
	Max     *int           `yaml:"max"`
	Message *string        `yaml:"message"`
}

type policyFile struct {
	Policies map[string]policyOverride `yaml:"policies"`
}

// LoadPolicies returns the rate limit presets with overrides from path applied.
// An empty path returns the presets unchanged. Unknown policy names are rejected
// since nothing would bind them to a route.
func LoadPolicies(path string) (map[string]ratelimit.Policy, error) {
	policies := ratelimit.Presets()
	if path == "" {
		return policies, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read policy file %s", path)
	}
	if err := applyPolicyOverrides(policies, b); err != nil {
		return nil, xerrors.Wrapf(err, "policy file %s", path)
	}
	return policies, nil
}

func applyPolicyOverrides(policies map[string]ratelimit.Policy, b []byte) error {
	var pf policyFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return xerrors.Wrap(err, "decode yaml")
	}

	names := make([]string, 0, len(pf.Policies))
	for name := range pf.Policies {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		o := pf.Policies[name]
		p, ok := policies[name]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown policy %q", name))
			continue
		}
		if o.Window != nil {
			p.Window = *o.Window
		}
		if o.Max != nil {
			p.Max = *o.Max
		}
		if o.Message != nil {
			p.Message = *o.Message
		}
		np, err := ratelimit.NewPolicy(p.Name, p.Window, p.Max, p.Message)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		policies[name] = np
	}
	return errors.Join(errs...)
}

// CheckRetention rejects a janitor retention shorter than any policy window,
// evicting a counter mid-window would hand the client a fresh quota
func CheckRetention(retention time.Duration, policies map[string]ratelimit.Policy) error {
	var errs []error
	for _, name := range sortedNames(policies) {
		p := policies[name]
		if retention < p.Window {
			errs = append(errs, fmt.Errorf("RATELIMIT_RETENTION %s is shorter than policy %q window %s", retention, name, p.Window))
		}
	}
	return errors.Join(errs...)
}

func sortedNames(policies map[string]ratelimit.Policy) []string {
	names := make([]string, 0, len(policies))
	for n := range policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
