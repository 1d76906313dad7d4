package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// SSE streams events as server-sent events over one HTTP response.
type SSE struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger

	mu           sync.Mutex
	disconnected bool
	terminated   bool
	done         chan struct{}
	closeOnce    sync.Once
	stop         func() bool
}

// NewSSE prepares w for streaming. The stream counts as disconnected as soon
// as ctx (normally the request context) is done.
func NewSSE(ctx context.Context, w http.ResponseWriter, logger *zap.Logger) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s := &SSE{
		ctx:     ctx,
		w:       w,
		flusher: flusher,
		logger:  logger,
		done:    make(chan struct{}),
	}
	s.stop = context.AfterFunc(ctx, s.disconnect)
	return s, nil
}

func (s *SSE) Progress(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closedLocked() {
		return
	}
	s.writeLocked(EventProgress, e)
}

func (s *SSE) Complete(payload any) {
	s.terminal(EventComplete, payload)
}

func (s *SSE) Error(message string) {
	s.terminal(EventError, ErrorPayload{Message: message})
}

func (s *SSE) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedLocked()
}

func (s *SSE) Done() <-chan struct{} {
	return s.done
}

func (s *SSE) terminal(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closedLocked() {
		return
	}
	s.writeLocked(event, payload)
	s.terminated = true
	s.stop()
}

// closedLocked also consults ctx so a disconnect is seen before the
// AfterFunc callback had a chance to run.
func (s *SSE) closedLocked() bool {
	if !s.disconnected && s.ctx.Err() != nil {
		s.markDisconnectedLocked()
	}
	return s.disconnected || s.terminated
}

func (s *SSE) writeLocked(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encoding progress event", zap.String("event", event), zap.Error(err))
		return
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		s.logger.Debug("subscriber is gone", zap.String("event", event), zap.Error(err))
		s.markDisconnectedLocked()
		return
	}
	s.flusher.Flush()
}

func (s *SSE) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDisconnectedLocked()
}

func (s *SSE) markDisconnectedLocked() {
	if s.terminated {
		return
	}
	s.disconnected = true
	s.closeOnce.Do(func() { close(s.done) })
}
