package ai

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/metrics"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/resilience"
)

const scoreOp = "score"

// Retrying runs a Scorer under the shared retry policy. The policy is read on
// every call.
type Retrying struct {
	scorer Scorer
	policy func() resilience.Policy
	logger *zap.Logger
}

func NewRetrying(scorer Scorer, policy func() resilience.Policy, logger *zap.Logger) *Retrying {
	return &Retrying{scorer: scorer, policy: policy, logger: logger}
}

func (r *Retrying) Score(ctx context.Context, profile *program.CompanyProfile, p *program.Program) (*FitAnalysisResult, error) {
	log := r.logger.With(zap.String(logger.FieldProgram, p.Name))
	started := time.Now()

	result, err := resilience.Retry(ctx, scoreOp, r.policy(), func(ctx context.Context) (*FitAnalysisResult, error) {
		return r.scorer.Score(ctx, profile, p)
	}, resilience.WithNotify(func(a resilience.Attempt) {
		log.Warn("retrying fit analysis",
			zap.String(logger.FieldErrorKind, string(a.Err.Kind)),
			zap.Duration("delay", a.Delay),
			zap.Error(a.Err),
		)
	}))

	outcome := "ok"
	if err != nil {
		outcome = string(resilience.KindOf(err))
	}
	metrics.ScoringDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	return result, err
}
