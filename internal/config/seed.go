package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/uptimealarm/internal/domain"
)

// Seed is the optional first-run configuration:
//
//	interval: 30
//	endpoints:
//	  - https://example.com/health
type Seed struct {
	Interval  int      `yaml:"interval"`
	Endpoints []string `yaml:"endpoints"`
}

// LoadSeed reads path. A missing file yields an empty seed.
func LoadSeed(path string) (Seed, error) {
	var s Seed
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read seed: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return s, nil
}

// SeedTarget is the part of the state store a seed writes to.
type SeedTarget interface {
	Endpoints(ctx context.Context) ([]string, error)
	SetEndpoints(ctx context.Context, list []string) error
	SetInterval(ctx context.Context, seconds int) error
	Seeded(ctx context.Context) (bool, error)
	MarkSeeded(ctx context.Context) error
}

// Apply writes the seed once, on a store that has never been seeded and has
// no endpoints. A store that already has endpoints is marked as seeded
// without changes. Invalid or duplicate entries are skipped and returned as
// errors alongside the count of endpoints written.
func (s Seed) Apply(ctx context.Context, st SeedTarget) (int, []error) {
	seeded, err := st.Seeded(ctx)
	if err != nil {
		return 0, []error{err}
	}
	if seeded {
		return 0, nil
	}
	current, err := st.Endpoints(ctx)
	if err != nil {
		return 0, []error{err}
	}
	if len(current) > 0 {
		if err := st.MarkSeeded(ctx); err != nil {
			return 0, []error{err}
		}
		return 0, nil
	}
	if len(s.Endpoints) == 0 && s.Interval == 0 {
		return 0, nil
	}

	var errs []error
	list := []string{}
	for _, raw := range s.Endpoints {
		next, _, err := domain.AddEndpoint(list, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed endpoint %q: %w", raw, err))
			continue
		}
		list = next
	}
	if len(list) > 0 {
		if err := st.SetEndpoints(ctx, list); err != nil {
			return 0, append(errs, err)
		}
	}
	if s.Interval != 0 {
		if err := domain.ValidateInterval(s.Interval); err != nil {
			errs = append(errs, fmt.Errorf("seed interval %d: %w", s.Interval, err))
		} else if err := st.SetInterval(ctx, s.Interval); err != nil {
			errs = append(errs, err)
		}
	}
	if err := st.MarkSeeded(ctx); err != nil {
		errs = append(errs, err)
	}
	return len(list), errs
}
