// Package progress delivers job progress to exactly one subscriber as an
// ordered stream of progress events closed by a single terminal event.
package progress

import "math"

// Event names on the wire.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// Event is one progress update.
type Event struct {
	Stage       string `json:"stage"`
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Percent     int    `json:"percent"`
	ProgramName string `json:"programName,omitempty"`
	Phase       int    `json:"phase,omitempty"`
}

// Percent is round(current/total*100) bounded to 0..100; zero total yields 0.
func Percent(current, total int) int {
	if total <= 0 || current <= 0 {
		return 0
	}
	p := int(math.Round(float64(current) / float64(total) * 100))
	if p > 100 {
		return 100
	}
	return p
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Channel is the producer side of a progress stream. Writes after the
// subscriber went away or after a terminal event are silently dropped.
type Channel interface {
	Progress(Event)
	// Complete sends the terminal complete event.
	Complete(payload any)
	// Error sends the terminal error event.
	Error(message string)
	// Closed reports whether further writes would be dropped.
	Closed() bool
	// Done is closed once the subscriber disconnects.
	Done() <-chan struct{}
}
