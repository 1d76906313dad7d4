package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/grantfit/internal/ai"
)

const sampleConfig = `
sources:
  bizinfo:
    api-key: biz-secret-value
    page-size: 50
  opendata:
    endpoint: /15049270/v1/uddi:abc
company:
  name: Acme
  employee-count: 12
  address: 서울특별시 강남구
  certifications: [벤처기업]
ai:
  workers: 5
  gemini:
    api-key: AIzaSyExampleKey
retry:
  max-attempts: 4
  initial-interval: 1s
`

func newViper(t *testing.T, body string) *viper.Viper {
	t.Helper()

	path := filepath.Join(t.TempDir(), "grantfit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}

func TestLoadAppliesDefaultsAndFileValues(t *testing.T) {
	cfg, err := Load(newViper(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "biz-secret-value", cfg.Sources.Bizinfo.APIKey)
	assert.Equal(t, 50, cfg.Sources.Bizinfo.PageSize)
	assert.Equal(t, 100, cfg.Sources.Kstartup.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Sources.Kstartup.Timeout)
	assert.Equal(t, 5, cfg.Sources.Registry.Years)
	assert.Equal(t, "/15049270/v1/uddi:abc", cfg.Sources.Opendata.Endpoint)

	assert.Equal(t, 5, cfg.AI.Workers)
	assert.Equal(t, "gemini-2.5-flash", cfg.AI.Gemini.Model)
	assert.Equal(t, ai.DefaultWeights(), cfg.AI.Weights)

	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialInterval)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxInterval)

	require.NotNil(t, cfg.Company)
	assert.Equal(t, "Acme", cfg.Company.Name)
	assert.Equal(t, 12, cfg.Company.EmployeeCount)
	assert.Equal(t, []string{"벤처기업"}, cfg.Company.Certifications)

	assert.Equal(t, SourceNames, cfg.Scan.Sources)
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv("GRANTFIT_SOURCES_KSTARTUP_API_KEY", "from-env")

	v := newViper(t, sampleConfig)
	BindEnv(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Sources.Kstartup.APIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(newViper(t, "ai:\n  workers: -1\n  minimum-fit-score: 120\nscan:\n  sources: [bizinfo, nope]\n"))
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "ai.workers")
	assert.Contains(t, msg, "minimum-fit-score")
	assert.Contains(t, msg, `unknown source "nope"`)
}

func TestLoadReadsWeights(t *testing.T) {
	body := "ai:\n  weights:\n    eligibility-match: 0.4\n    industry-relevance: 0.2\n    scale-fit: 0.2\n    competitiveness: 0.1\n    strategic-alignment: 0.1\n"
	cfg, err := Load(newViper(t, body))
	require.NoError(t, err)
	assert.Equal(t, ai.Weights{EligibilityMatch: 0.4, IndustryRelevance: 0.2, ScaleFit: 0.2, Competitiveness: 0.1, StrategicAlignment: 0.1}, cfg.AI.Weights)

	// A single override keeps the remaining defaults, which no longer sum to 1.
	_, err = Load(newViper(t, "ai:\n  weights:\n    scale-fit: 0.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai.weights")
	assert.Contains(t, err.Error(), "sum to 1")
}

func TestStoreSwapsSnapshots(t *testing.T) {
	store := NewStore(&Config{Sources: &SourcesConfig{Bizinfo: &SourceConfig{APIKey: "old"}}})

	before := store.Source(SourceBizinfo)
	store.Set(&Config{Sources: &SourcesConfig{Bizinfo: &SourceConfig{APIKey: "new"}}})

	assert.Equal(t, "old", before.APIKey, "snapshots taken before a reload must not change")
	assert.Equal(t, "new", store.Source(SourceBizinfo).APIKey)
	assert.NotNil(t, store.Source(SourceKstartup), "missing sources are filled with empty configs")
	assert.NotNil(t, store.Gemini())
}

func TestMaskHidesSecretLikeValuesOnly(t *testing.T) {
	settings := map[string]any{
		"sources": map[string]any{
			"bizinfo": map[string]any{
				"api-key":      "biz-secret-value",
				"api-key-file": "/run/secrets/bizinfo",
				"page-size":    100,
			},
		},
		"cache": map[string]any{"password": "short", "redis-addr": "localhost:6379"},
		"ai":    map[string]any{"gemini": map[string]any{"api-key": ""}},
	}

	masked := Mask(settings)

	bizinfo := masked["sources"].(map[string]any)["bizinfo"].(map[string]any)
	assert.Equal(t, "biz-****", bizinfo["api-key"])
	assert.Equal(t, "/run/secrets/bizinfo", bizinfo["api-key-file"])
	assert.Equal(t, 100, bizinfo["page-size"])

	cache := masked["cache"].(map[string]any)
	assert.Equal(t, maskValue, cache["password"])
	assert.Equal(t, "localhost:6379", cache["redis-addr"])

	original := settings["sources"].(map[string]any)["bizinfo"].(map[string]any)
	assert.Equal(t, "biz-secret-value", original["api-key"], "the stored map must not be modified")

	assert.Equal(t, []string{"cache.password", "sources.bizinfo.api-key"}, MaskedKeys(settings))
	assert.False(t, strings.Contains(strings.Join(MaskedKeys(settings), ","), "gemini"))
}
