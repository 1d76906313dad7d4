package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/ai"
	"github.com/spigell/grantfit/internal/jobs"
)

type minimumFitScoreFilter struct {
	disabled bool
	reason   string
	minimum  float64
}

// NewMinimumFitScore creates a filter that removes scored programs below the
// configured fit score. Programs whose scoring failed are kept so the failure
// stays visible.
func NewMinimumFitScore() Filter {
	return &minimumFitScoreFilter{}
}

func (f *minimumFitScoreFilter) Name() string { return "minimum_fit_score" }

func (f *minimumFitScoreFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *minimumFitScoreFilter) IsEnabled() bool { return !f.disabled }

func (f *minimumFitScoreFilter) Validate(cfg *Config) error {
	f.minimum = 0
	if cfg == nil {
		return nil
	}
	if cfg.MinimumFitScore < ai.MinScore || cfg.MinimumFitScore > ai.MaxScore {
		return fmt.Errorf("minimum fit score must be within %d..%d, got %v", ai.MinScore, ai.MaxScore, cfg.MinimumFitScore)
	}
	f.minimum = cfg.MinimumFitScore
	return nil
}

func (f *minimumFitScoreFilter) Apply(_ context.Context, deps Deps, items []jobs.Item) ([]jobs.Item, Step, error) {
	initial := len(items)
	if f.minimum == 0 {
		return items, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	kept, dropped := keep(items, func(item jobs.Item) bool {
		return item.Analysis == nil || float64(item.Analysis.FitScore) >= f.minimum
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding programs below the minimum fit score",
			zap.Float64("minimum_fit_score", f.minimum),
			zap.Strings("excluded_programs", dropped),
			zap.Int("programs_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *minimumFitScoreFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"minimum_fit_score": fmt.Sprintf("%.2f", f.minimum)},
	}
}
