// Package config holds the application configuration and a reloadable store
// that connectors and the scoring engine read at call time.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spigell/grantfit/internal/ai"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/resilience"
)

const (
	App       = "grantfit"
	EnvPrefix = "GRANTFIT"
)

// Source names in priority order. Registry data wins over generic listings.
const (
	SourceRegistry = "registry"
	SourceOpendata = "opendata"
	SourceBizinfo  = "bizinfo"
	SourceKstartup = "kstartup"
)

// SourceNames lists every connector in priority order.
var SourceNames = []string{SourceRegistry, SourceOpendata, SourceBizinfo, SourceKstartup}

type Config struct {
	Server      *ServerConfig           `mapstructure:"server"`
	Sources     *SourcesConfig          `mapstructure:"sources"`
	AI          *AIConfig               `mapstructure:"ai"`
	Retry       resilience.Policy       `mapstructure:"retry"`
	Cache       *CacheConfig            `mapstructure:"cache"`
	Company     *program.CompanyProfile `mapstructure:"company"`
	Scan        *ScanConfig             `mapstructure:"scan"`
	ExcludeFile string                  `mapstructure:"exclude-file"`
}

type ServerConfig struct {
	Addr       string        `mapstructure:"addr"`
	APIKey     string        `mapstructure:"api-key"`
	APIKeyFile string        `mapstructure:"api-key-file"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SourcesConfig struct {
	Registry *SourceConfig `mapstructure:"registry"`
	Opendata *SourceConfig `mapstructure:"opendata"`
	Bizinfo  *SourceConfig `mapstructure:"bizinfo"`
	Kstartup *SourceConfig `mapstructure:"kstartup"`
}

// SourceConfig configures one connector.
type SourceConfig struct {
	BaseURL       string        `mapstructure:"base-url"`
	APIKey        string        `mapstructure:"api-key"`
	APIKeyFile    string        `mapstructure:"api-key-file"`
	RatePerSecond float64       `mapstructure:"rate-per-second"`
	Burst         int           `mapstructure:"burst"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PageSize      int           `mapstructure:"page-size"`
	// Endpoint is the provider dataset path, used by the open data connector.
	Endpoint string `mapstructure:"endpoint"`
	// Years is the financial statement range, used by the registry connector.
	Years     int    `mapstructure:"years"`
	UserAgent string `mapstructure:"user-agent"`
}

type AIConfig struct {
	Provider         string        `mapstructure:"provider"`
	Workers          int           `mapstructure:"workers"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MinimumFitScore  float64       `mapstructure:"minimum-fit-score"`
	UserInstructions string        `mapstructure:"user-instructions"`
	Weights          ai.Weights    `mapstructure:"weights"`
	Gemini           *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis-addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type ScanConfig struct {
	Sources []string `mapstructure:"sources"`
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.timeout", 2*time.Minute)

	v.SetDefault("sources.registry.base-url", "https://opendart.fss.or.kr/api")
	v.SetDefault("sources.registry.years", 5)
	v.SetDefault("sources.registry.rate-per-second", 5)
	v.SetDefault("sources.opendata.base-url", "https://api.odcloud.kr/api")
	v.SetDefault("sources.opendata.endpoint", "/15049270/v1/uddi:49607839-e916-4d65-b778-952d5e5a4ad2")
	v.SetDefault("sources.opendata.rate-per-second", 5)
	v.SetDefault("sources.bizinfo.base-url", "https://www.bizinfo.go.kr/uss/rss/bizinfoApi.do")
	v.SetDefault("sources.bizinfo.rate-per-second", 2)
	v.SetDefault("sources.kstartup.base-url", "https://apis.data.go.kr/B552735/kisedKstartupService01/getAnnouncementInformation01")
	v.SetDefault("sources.kstartup.rate-per-second", 5)
	for _, name := range SourceNames {
		v.SetDefault("sources."+name+".timeout", 30*time.Second)
		v.SetDefault("sources."+name+".page-size", 100)
		v.SetDefault("sources."+name+".burst", 1)
		// Keys without a default are invisible to env overrides on Unmarshal.
		v.SetDefault("sources."+name+".api-key", "")
		v.SetDefault("sources."+name+".api-key-file", "")
	}
	v.SetDefault("server.api-key", "")
	v.SetDefault("server.api-key-file", "")
	v.SetDefault("ai.gemini.api-key", "")
	v.SetDefault("ai.gemini.api-key-file", "")
	v.SetDefault("cache.redis-addr", "")

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.workers", 3)
	v.SetDefault("ai.user-instructions", "")
	v.SetDefault("ai.timeout", 90*time.Second)
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ai.gemini.max-log-length", 2000)

	weights := ai.DefaultWeights()
	v.SetDefault("ai.weights.eligibility-match", weights.EligibilityMatch)
	v.SetDefault("ai.weights.industry-relevance", weights.IndustryRelevance)
	v.SetDefault("ai.weights.scale-fit", weights.ScaleFit)
	v.SetDefault("ai.weights.competitiveness", weights.Competitiveness)
	v.SetDefault("ai.weights.strategic-alignment", weights.StrategicAlignment)

	policy := resilience.DefaultPolicy()
	v.SetDefault("retry.max-attempts", policy.MaxAttempts)
	v.SetDefault("retry.initial-interval", policy.InitialInterval)
	v.SetDefault("retry.max-interval", policy.MaxInterval)
	v.SetDefault("retry.multiplier", policy.Multiplier)
	v.SetDefault("retry.jitter", policy.Jitter)
	v.SetDefault("retry.attempt-timeout", policy.AttemptTimeout)

	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("scan.sources", SourceNames)
}

// BindEnv makes every key overridable as GRANTFIT_SECTION_KEY.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load decodes v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg *Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fill() {
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Sources == nil {
		c.Sources = &SourcesConfig{}
	}
	for _, name := range SourceNames {
		if c.Sources.Get(name) == nil {
			c.Sources.set(name, &SourceConfig{})
		}
	}
	if c.AI == nil {
		c.AI = &AIConfig{}
	}
	if c.AI.Gemini == nil {
		c.AI.Gemini = &GeminiConfig{}
	}
	if c.AI.Weights.IsZero() {
		c.AI.Weights = ai.DefaultWeights()
	}
	if c.Cache == nil {
		c.Cache = &CacheConfig{}
	}
	if c.Scan == nil {
		c.Scan = &ScanConfig{}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.AI != nil && c.AI.Workers < 0 {
		errs = append(errs, fmt.Errorf("ai.workers must not be negative, got %d", c.AI.Workers))
	}
	if c.AI != nil && (c.AI.MinimumFitScore < 0 || c.AI.MinimumFitScore > 100) {
		errs = append(errs, fmt.Errorf("ai.minimum-fit-score must be within 0..100, got %v", c.AI.MinimumFitScore))
	}
	if c.AI != nil {
		if err := c.AI.Weights.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("ai.weights: %w", err))
		}
	}
	if c.Scan != nil {
		for _, name := range c.Scan.Sources {
			if !IsSource(name) {
				errs = append(errs, fmt.Errorf("scan.sources: unknown source %q", name))
			}
		}
	}
	return errors.Join(errs...)
}

// Get returns the named source configuration, or nil for unknown names.
func (s *SourcesConfig) Get(name string) *SourceConfig {
	if s == nil {
		return nil
	}
	switch name {
	case SourceRegistry:
		return s.Registry
	case SourceOpendata:
		return s.Opendata
	case SourceBizinfo:
		return s.Bizinfo
	case SourceKstartup:
		return s.Kstartup
	}
	return nil
}

func (s *SourcesConfig) set(name string, sc *SourceConfig) {
	switch name {
	case SourceRegistry:
		s.Registry = sc
	case SourceOpendata:
		s.Opendata = sc
	case SourceBizinfo:
		s.Bizinfo = sc
	case SourceKstartup:
		s.Kstartup = sc
	}
}

// IsSource reports whether name is a known connector.
func IsSource(name string) bool {
	for _, known := range SourceNames {
		if known == name {
			return true
		}
	}
	return false
}
