package filtering

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/jobs"
)

type expiredFilter struct {
	disabled bool
	reason   string
}

// NewExpired creates a filter that removes programs whose application
// period already ended. Programs without a readable end date are kept.
func NewExpired() Filter {
	return &expiredFilter{}
}

func (f *expiredFilter) Name() string { return "expired" }

func (f *expiredFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *expiredFilter) IsEnabled() bool { return !f.disabled }

func (f *expiredFilter) Validate(*Config) error { return nil }

func (f *expiredFilter) Apply(_ context.Context, deps Deps, items []jobs.Item) ([]jobs.Item, Step, error) {
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}
	y, m, d := now().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	initial := len(items)
	kept, dropped := keep(items, func(item jobs.Item) bool {
		end, ok := item.Program.EndTime()
		return !ok || !end.Before(today)
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding programs with a past end date",
			zap.Strings("excluded_programs", dropped),
			zap.Int("programs_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *expiredFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}
