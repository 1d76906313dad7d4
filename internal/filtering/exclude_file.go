package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/jobs"
	"github.com/spigell/grantfit/internal/program"
)

type excludeFileFilter struct {
	path string
}

// NewExcludeFile creates a filter that removes programs listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(string) {}

func (f *excludeFileFilter) IsEnabled() bool { return true }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, items []jobs.Item) ([]jobs.Item, Step, error) {
	initial := len(items)
	if f.path == "" {
		return items, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	excluded, err := program.LoadExcluded(f.path)
	if err != nil {
		return items, Step{}, fmt.Errorf("getting excluded programs from file: %w", err)
	}

	keys := excluded.Keys()
	kept, dropped := keep(items, func(item jobs.Item) bool {
		return !keys[item.Program.Key().String()]
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding programs based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_programs", dropped),
			zap.Int("programs_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(dropped), Left: len(kept)}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
