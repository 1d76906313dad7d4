package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/program"
)

const defaultPageSize = 100

// Params are the caller-supplied fetch parameters. Zero values fall back to
// provider defaults. Endpoint overrides the configured dataset path of the
// open data provider.
type Params struct {
	Page     int    `json:"page,omitempty"`
	PerPage  int    `json:"perPage,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Connector turns one provider's listing into partial programs.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, params Params) ([]*program.Program, error)
}

// SettingsProvider hands out the current connector settings. It is consulted
// on every call so credentials can change between calls.
type SettingsProvider interface {
	Source(name string) *config.SourceConfig
}

// NewListings builds the program listing connectors keyed by name.
func NewListings(settings SettingsProvider, logger *zap.Logger) map[string]Connector {
	return map[string]Connector{
		config.SourceOpendata: NewOpendata(settings, logger),
		config.SourceBizinfo:  NewBizinfo(settings, logger),
		config.SourceKstartup: NewKstartup(settings, logger),
	}
}

func page(params Params) int {
	if params.Page > 0 {
		return params.Page
	}
	return 1
}

func perPage(params Params, settings *config.SourceConfig) int {
	switch {
	case params.PerPage > 0:
		return params.PerPage
	case settings.PageSize > 0:
		return settings.PageSize
	default:
		return defaultPageSize
	}
}
