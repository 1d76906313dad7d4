package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/spigell/grantfit/internal/aggregator"
	"github.com/spigell/grantfit/internal/ai"
	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/metrics"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/progress"
	"github.com/spigell/grantfit/internal/resilience"
)

const (
	defaultWorkers = 3
	defaultTimeout = 90 * time.Second
)

// Aggregator produces the program list of a scan.
type Aggregator interface {
	Aggregate(ctx context.Context, profile *program.CompanyProfile, req aggregator.Request) (*aggregator.Result, error)
}

// Settings exposes the scoring configuration at call time.
type Settings interface {
	AI() *config.AIConfig
}

// ItemError annotates a program whose scoring failed.
type ItemError struct {
	Kind    resilience.Kind `json:"kind"`
	Message string          `json:"message"`
}

// Item is the outcome for one program.
type Item struct {
	Program  *program.Program      `json:"program"`
	Analysis *ai.FitAnalysisResult `json:"analysis,omitempty"`
	Error    *ItemError            `json:"error,omitempty"`
}

// ScanResult is the payload of a completed scan.
type ScanResult struct {
	JobID          string                  `json:"jobId"`
	Status         Status                  `json:"status"`
	Profile        *program.CompanyProfile `json:"profile,omitempty"`
	Items          []Item                  `json:"items"`
	SourceFailures []aggregator.Failure    `json:"sourceFailures,omitempty"`
	// Message explains a failed job.
	Message string `json:"message,omitempty"`
}

// Scored returns the items that carry an analysis.
func (r *ScanResult) Scored() []Item {
	var out []Item
	for _, item := range r.Items {
		if item.Analysis != nil {
			out = append(out, item)
		}
	}
	return out
}

type Runner struct {
	aggregator Aggregator
	scorer     ai.Scorer
	settings   Settings
	logger     *zap.Logger
}

func NewRunner(agg Aggregator, scorer ai.Scorer, settings Settings, logger *zap.Logger) *Runner {
	return &Runner{
		aggregator: agg,
		scorer:     scorer,
		settings:   settings,
		logger:     logger,
	}
}

type outcome struct {
	index    int
	analysis *ai.FitAnalysisResult
	err      error
}

// Scan runs job to a terminal state. Sources are fetched, every program is
// scored with bounded concurrency and the result is sent as the complete
// event. When ch reports a disconnect no further program is dispatched, the
// partial result is discarded and no terminal event is sent.
func (r *Runner) Scan(ctx context.Context, job *ScanJob, profile *program.CompanyProfile, req aggregator.Request, ch progress.Channel) *ScanResult {
	log := logger.WithJob(r.logger, job.ID())
	result := &ScanResult{JobID: job.ID(), Items: []Item{}}

	if !r.start(job) {
		result.Status = job.Status()
		return result
	}
	defer metrics.ScanJobsActive.Dec()

	r.emit(job, ch, progress.Event{Stage: StageFetching, Phase: PhaseFetching}, 0, 0)

	if profile == nil {
		return r.fail(job, ch, result, resilience.Errorf(resilience.KindValidation, "scan", "company profile is required"))
	}

	aggregated, err := r.aggregator.Aggregate(ctx, profile, req)
	// Sources fail with context errors once the subscriber is gone.
	if disconnected(ch) || ctx.Err() != nil {
		return r.cancel(job, result, log)
	}
	if err != nil {
		return r.fail(job, ch, result, err)
	}
	result.Profile = aggregated.Profile
	result.SourceFailures = aggregated.Failures

	if aggregated.AllListingsFailed() {
		msgs := make([]string, 0, len(aggregated.Failures))
		for _, f := range aggregated.Failures {
			msgs = append(msgs, f.Message)
		}
		return r.fail(job, ch, result, resilience.Errorf(resilience.KindUpstream, "scan", "no program source could be reached: %s", strings.Join(msgs, "; ")))
	}

	programs := aggregated.Programs.Items
	total := len(programs)
	result.Items = make([]Item, total)
	for i, p := range programs {
		result.Items[i] = Item{Program: p}
	}
	log.Info("scoring programs", zap.Int("programs", total), zap.Int("failed_sources", len(aggregated.Failures)))
	r.emit(job, ch, progress.Event{Stage: StageScoring, Phase: PhaseScoring}, 0, total)

	cancelled, fatal := r.score(ctx, job, result.Profile, programs, result.Items, ch, log)
	switch {
	case fatal != nil:
		return r.fail(job, ch, result, fatal)
	case cancelled:
		return r.cancel(job, result, log)
	}

	r.emit(job, ch, progress.Event{Stage: StageFinalizing, Phase: PhaseFinalizing}, total, total)
	job.transition(StatusCompleted)
	result.Status = StatusCompleted
	metrics.ScanJobs.WithLabelValues(string(StatusCompleted)).Inc()
	log.Info("scan completed", zap.Int("programs", total), zap.Int("scored", len(result.Scored())))
	ch.Complete(result)
	return result
}

// score dispatches one scoring call per program, never more than the worker
// limit at once. Outcomes are collected by a single goroutine so the
// progress counter only grows. It reports whether the subscriber went away
// and the job-level error that stopped dispatching, if any.
func (r *Runner) score(ctx context.Context, job *ScanJob, profile *program.CompanyProfile, programs []*program.Program, items []Item, ch progress.Channel, log *zap.Logger) (bool, error) {
	total := len(programs)
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()
	go func() {
		select {
		case <-ch.Done():
			stopDispatch()
		case <-dispatchCtx.Done():
		}
	}()

	var fatal error
	outcomes := make(chan outcome, total)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		done := 0
		for o := range outcomes {
			done++
			name := programs[o.index].Name
			if o.err != nil {
				classified := resilience.Classify(o.err)
				items[o.index].Error = &ItemError{Kind: classified.Kind, Message: classified.UserMessage()}
				log.Warn("program scoring failed",
					zap.String(logger.FieldProgram, name),
					zap.String(logger.FieldErrorKind, string(classified.Kind)),
					zap.Error(o.err),
				)
				if fatal == nil && jobFatal(classified.Kind) {
					fatal = classified
					stopDispatch()
				}
			} else {
				items[o.index].Analysis = o.analysis
			}
			r.emit(job, ch, progress.Event{Stage: StageScoring, ProgramName: name, Phase: PhaseScoring}, done, total)
		}
	}()

	sem := semaphore.NewWeighted(int64(r.workers()))
	timeout := r.timeout()
	var wg sync.WaitGroup
	for i, p := range programs {
		if dispatchCtx.Err() != nil {
			break
		}
		if err := sem.Acquire(dispatchCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			// In-flight calls finish even after a disconnect; only dispatch stops.
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			defer cancel()
			analysis, err := r.scorer.Score(callCtx, profile, p)
			outcomes <- outcome{index: i, analysis: analysis, err: err}
		}()
	}
	wg.Wait()
	close(outcomes)
	<-collected

	if fatal != nil {
		return false, fatal
	}
	return disconnected(ch) || ctx.Err() != nil, nil
}

// Analyze scores one program synchronously.
func (r *Runner) Analyze(ctx context.Context, profile *program.CompanyProfile, p *program.Program) (*ai.FitAnalysisResult, error) {
	if profile == nil || p == nil {
		return nil, resilience.Errorf(resilience.KindValidation, "analyze", "company profile and program are required")
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	return r.scorer.Score(callCtx, profile, p)
}

// AnalyzeStream scores one program as a job reporting through ch.
func (r *Runner) AnalyzeStream(ctx context.Context, job *ScanJob, profile *program.CompanyProfile, p *program.Program, ch progress.Channel) (*ai.FitAnalysisResult, error) {
	log := logger.WithJob(r.logger, job.ID())
	if !r.start(job) {
		return nil, resilience.Errorf(resilience.KindValidation, "analyze", "job %s already started", job.ID())
	}
	defer metrics.ScanJobsActive.Dec()

	name := ""
	if p != nil {
		name = p.Name
	}
	r.emit(job, ch, progress.Event{Stage: StageScoring, ProgramName: name, Phase: PhaseScoring}, 0, 1)

	analysis, err := r.Analyze(context.WithoutCancel(ctx), profile, p)
	if disconnected(ch) {
		r.cancel(job, &ScanResult{JobID: job.ID()}, log)
		return analysis, err
	}
	if err != nil {
		r.fail(job, ch, &ScanResult{JobID: job.ID()}, err)
		return nil, err
	}

	r.emit(job, ch, progress.Event{Stage: StageFinalizing, ProgramName: name, Phase: PhaseFinalizing}, 1, 1)
	job.transition(StatusCompleted)
	metrics.ScanJobs.WithLabelValues(string(StatusCompleted)).Inc()
	ch.Complete(analysis)
	return analysis, nil
}

func (r *Runner) start(job *ScanJob) bool {
	if !job.transition(StatusRunning) {
		return false
	}
	metrics.ScanJobsActive.Inc()
	return true
}

func (r *Runner) emit(job *ScanJob, ch progress.Channel, e progress.Event, current, total int) {
	job.advance(e.Stage, current, total)
	e.Current, e.Total, e.Percent = current, total, progress.Percent(current, total)
	ch.Progress(e)
}

func (r *Runner) fail(job *ScanJob, ch progress.Channel, result *ScanResult, err error) *ScanResult {
	classified := resilience.Classify(err)
	job.transition(StatusFailed)
	result.Status = StatusFailed
	result.Message = classified.UserMessage()
	metrics.ScanJobs.WithLabelValues(string(StatusFailed)).Inc()
	logger.WithJob(r.logger, job.ID()).Error("job failed",
		zap.String(logger.FieldErrorKind, string(classified.Kind)),
		zap.String(logger.FieldClassifierVersion, resilience.ClassifierVersion),
		zap.Error(err),
	)
	ch.Error(result.Message)
	return result
}

func (r *Runner) cancel(job *ScanJob, result *ScanResult, log *zap.Logger) *ScanResult {
	job.transition(StatusCancelled)
	result.Status = StatusCancelled
	result.Items = []Item{}
	metrics.ScanJobs.WithLabelValues(string(StatusCancelled)).Inc()
	log.Info("subscriber disconnected, job cancelled")
	return result
}

func (r *Runner) workers() int {
	if cfg := r.settings.AI(); cfg != nil && cfg.Workers > 0 {
		return cfg.Workers
	}
	return defaultWorkers
}

func (r *Runner) timeout() time.Duration {
	if cfg := r.settings.AI(); cfg != nil && cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return defaultTimeout
}

// jobFatal lists the kinds that make every further scoring call pointless.
func jobFatal(kind resilience.Kind) bool {
	switch kind {
	case resilience.KindInvalidCredential, resilience.KindModelNotFound, resilience.KindAuth:
		return true
	}
	return false
}

func disconnected(ch progress.Channel) bool {
	select {
	case <-ch.Done():
		return true
	default:
		return false
	}
}
