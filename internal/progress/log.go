package progress

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Log reports progress to a zap logger. It is the channel used by the CLI,
// where the subscriber is the terminal and ctx is cancelled on interrupt.
type Log struct {
	ctx    context.Context
	logger *zap.Logger

	mu         sync.Mutex
	terminated bool
	result     any
	message    string
}

func NewLog(ctx context.Context, logger *zap.Logger) *Log {
	return &Log{ctx: ctx, logger: logger}
}

func (l *Log) Progress(e Event) {
	if l.Closed() {
		return
	}
	fields := []zap.Field{
		zap.Int("current", e.Current),
		zap.Int("total", e.Total),
		zap.Int("percent", e.Percent),
	}
	if e.ProgramName != "" {
		fields = append(fields, zap.String("program", e.ProgramName))
	}
	l.logger.Info(e.Stage, fields...)
}

func (l *Log) Complete(payload any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminated || l.ctx.Err() != nil {
		return
	}
	l.terminated = true
	l.result = payload
	l.logger.Info("job completed")
}

func (l *Log) Error(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminated || l.ctx.Err() != nil {
		return
	}
	l.terminated = true
	l.message = message
	l.logger.Error("job failed", zap.String("reason", message))
}

func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terminated || l.ctx.Err() != nil
}

func (l *Log) Done() <-chan struct{} {
	return l.ctx.Done()
}

// Result returns the complete payload, or nil when the job did not complete.
func (l *Log) Result() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

// Failure returns the error message of a failed job.
func (l *Log) Failure() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.message
}
