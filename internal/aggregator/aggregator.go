// Package aggregator fans out to the selected connectors, joins their results
// and merges them into one deduplicated program list.
package aggregator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/resilience"
	"github.com/spigell/grantfit/internal/sources"
)

// Enricher resolves registry data for a company.
type Enricher interface {
	Snapshot(ctx context.Context, name string, years int) (*program.CompanySnapshot, error)
}

// Request selects the sources of one aggregation.
type Request struct {
	// Sources are connector names. Empty selects every configured source.
	Sources []string `json:"sources,omitempty"`
	// Params are per-source fetch parameters keyed by source name.
	Params map[string]sources.Params `json:"params,omitempty"`
	// Years bounds the registry financial statements.
	Years int `json:"years,omitempty"`
}

// Failure records a source whose call failed after retries.
type Failure struct {
	Source  string          `json:"source"`
	Kind    resilience.Kind `json:"kind"`
	Message string          `json:"message"`
}

// Result is the outcome of one aggregation.
type Result struct {
	Programs *program.Programs
	// Profile is the caller's profile enriched with registry data, or the
	// profile itself when the registry was not used.
	Profile  *program.CompanyProfile
	Snapshot *program.CompanySnapshot
	Failures []Failure
	// Listed counts the listing sources that were called.
	Listed int
}

// AllListingsFailed reports whether every called listing source failed.
func (r *Result) AllListingsFailed() bool {
	if r.Listed == 0 {
		return false
	}
	failed := 0
	for _, f := range r.Failures {
		if f.Source != config.SourceRegistry {
			failed++
		}
	}
	return failed == r.Listed
}

type Aggregator struct {
	listings map[string]sources.Connector
	enricher Enricher
	policy   func() resilience.Policy
	logger   *zap.Logger
}

func New(listings map[string]sources.Connector, enricher Enricher, policy func() resilience.Policy, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		listings: listings,
		enricher: enricher,
		policy:   policy,
		logger:   logger,
	}
}

// Validate rejects a request before any connector is called.
func (a *Aggregator) Validate(req Request) error {
	const op = "aggregate.validate"

	for _, name := range req.Sources {
		if !config.IsSource(name) {
			return resilience.Errorf(resilience.KindValidation, op, "unknown source %q", name)
		}
		if name != config.SourceRegistry && a.listings[name] == nil {
			return resilience.Errorf(resilience.KindValidation, op, "source %q is not available", name)
		}
	}
	for name, params := range req.Params {
		if !config.IsSource(name) {
			return resilience.Errorf(resilience.KindValidation, op, "params for unknown source %q", name)
		}
		if params.Endpoint != "" {
			if err := sources.ValidateEndpoint(params.Endpoint); err != nil {
				return err
			}
		}
	}
	return nil
}

// Aggregate calls every selected source concurrently, waits for all of them
// and merges the listings in source priority order. A failed source
// contributes nothing and is recorded in Failures; only an invalid request is
// returned as an error.
func (a *Aggregator) Aggregate(ctx context.Context, profile *program.CompanyProfile, req Request) (*Result, error) {
	if err := a.Validate(req); err != nil {
		return nil, err
	}

	selected := a.selected(req.Sources)
	batches := make([][]*program.Program, len(selected))
	failures := make([]*Failure, len(selected))
	var snapshot *program.CompanySnapshot

	var g errgroup.Group
	for i, name := range selected {
		if name == config.SourceRegistry {
			if a.enricher == nil || profile == nil {
				continue
			}
			g.Go(func() error {
				s, err := resilience.Retry(ctx, "fetch."+name, a.policy(), func(ctx context.Context) (*program.CompanySnapshot, error) {
					return a.enricher.Snapshot(ctx, profile.Name, req.Years)
				}, a.notify(name))
				if err != nil {
					failures[i] = a.failure(name, err)
					return nil
				}
				snapshot = s
				return nil
			})
			continue
		}

		connector := a.listings[name]
		params := req.Params[name]
		g.Go(func() error {
			programs, err := resilience.Retry(ctx, "fetch."+name, a.policy(), func(ctx context.Context) ([]*program.Program, error) {
				return connector.Fetch(ctx, params)
			}, a.notify(name))
			if err != nil {
				failures[i] = a.failure(name, err)
				return nil
			}
			batches[i] = programs
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		Programs: program.Dedup(batches...),
		Profile:  profile,
		Snapshot: snapshot,
	}
	for _, name := range selected {
		if name != config.SourceRegistry {
			result.Listed++
		}
	}
	for _, f := range failures {
		if f != nil {
			result.Failures = append(result.Failures, *f)
		}
	}
	if profile != nil && snapshot != nil {
		result.Profile = profile.Enrich(snapshot)
	}

	a.logger.Info("aggregation finished",
		zap.Strings("sources", selected),
		zap.Int("programs", result.Programs.Len()),
		zap.Int("failed_sources", len(result.Failures)),
	)
	return result, nil
}

// selected returns the requested sources in priority order, deduplicated.
func (a *Aggregator) selected(requested []string) []string {
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}

	var out []string
	for _, name := range config.SourceNames {
		if len(requested) > 0 && !want[name] {
			continue
		}
		if name == config.SourceRegistry && a.enricher == nil {
			continue
		}
		if name != config.SourceRegistry && a.listings[name] == nil {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (a *Aggregator) notify(name string) resilience.Option {
	log := logger.WithSource(a.logger, name)
	return resilience.WithNotify(func(at resilience.Attempt) {
		log.Warn("retrying source",
			zap.String(logger.FieldErrorKind, string(at.Err.Kind)),
			zap.Duration("delay", at.Delay),
			zap.Error(at.Err),
		)
	})
}

func (a *Aggregator) failure(name string, err error) *Failure {
	classified := resilience.Classify(err)
	logger.WithSource(a.logger, name).Warn("source failed",
		zap.String(logger.FieldErrorKind, string(classified.Kind)),
		zap.Error(err),
	)
	return &Failure{
		Source:  name,
		Kind:    classified.Kind,
		Message: fmt.Sprintf("%s: %s", name, classified.UserMessage()),
	}
}
