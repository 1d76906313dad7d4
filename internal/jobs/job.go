// Package jobs drives scans and single analyses as jobs that report through a
// progress channel.
package jobs

import (
	"sync"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Stage labels reported in progress events.
const (
	StageFetching   = "fetching programs"
	StageScoring    = "scoring programs"
	StageFinalizing = "finalizing"
)

// Phases of a scan, in order.
const (
	PhaseFetching = iota + 1
	PhaseScoring
	PhaseFinalizing
)

// ScanJob is the state of one running scan. Only the runner owning it
// mutates it; readers get consistent values through the accessors.
type ScanJob struct {
	id string

	mu      sync.Mutex
	status  Status
	stage   string
	current int
	total   int
}

func NewScanJob() *ScanJob {
	return &ScanJob{
		id:     uuid.NewString(),
		status: StatusPending,
	}
}

func (j *ScanJob) ID() string { return j.id }

func (j *ScanJob) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress returns the current stage and counters.
func (j *ScanJob) Progress() (stage string, current, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stage, j.current, j.total
}

// transition moves the job to next. Terminal states absorb every transition.
func (j *ScanJob) transition(next Status) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return false
	}
	if next == StatusRunning && j.status != StatusPending {
		return false
	}
	if next.Terminal() && j.status != StatusRunning {
		return false
	}
	j.status = next
	return true
}

// advance records a stage and its counters. current never decreases within
// a stage.
func (j *ScanJob) advance(stage string, current, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stage == stage && current < j.current {
		current = j.current
	}
	j.stage, j.current, j.total = stage, current, total
}
