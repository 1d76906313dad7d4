package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/resilience"
)

const (
	DefaultYears = 5
	MaxYears     = 10

	annualReport = "11011"
)

// Registry status codes. Anything else is an upstream failure.
const (
	registryOK          = "000"
	registryNoData      = "013"
	registryBadKey      = "010"
	registryKeyDisabled = "011"
	registryIPDenied    = "012"
	registryOverLimit   = "020"
	registryBadField    = "100"
)

var registryAccounts = map[string]func(*program.FinancialStatement, int64){
	"매출액":   func(f *program.FinancialStatement, v int64) { f.Revenue = v },
	"영업이익":  func(f *program.FinancialStatement, v int64) { f.OperatingIncome = v },
	"당기순이익": func(f *program.FinancialStatement, v int64) { f.NetIncome = v },
}

// Registry looks companies up in the corporate disclosure registry.
type Registry struct {
	settings SettingsProvider
	client   *Client
	logger   *zap.Logger
	now      func() time.Time
}

func NewRegistry(settings SettingsProvider, log *zap.Logger) *Registry {
	log = logger.WithSource(log, config.SourceRegistry)
	return &Registry{
		settings: settings,
		client:   NewClient(config.SourceRegistry, log),
		logger:   log,
		now:      time.Now,
	}
}

func (r *Registry) Name() string { return config.SourceRegistry }

// ClampYears bounds a requested statement range to [1, MaxYears]. Zero selects
// the default.
func ClampYears(years int) int {
	switch {
	case years == 0:
		return DefaultYears
	case years < 1:
		return 1
	case years > MaxYears:
		return MaxYears
	default:
		return years
	}
}

// Snapshot resolves name to a registered company and returns its overview and
// financial statements for the last years fiscal years.
func (r *Registry) Snapshot(ctx context.Context, name string, years int) (*program.CompanySnapshot, error) {
	if years == 0 {
		years = r.settings.Source(config.SourceRegistry).Years
	}

	corpCode, err := r.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	snapshot, err := r.Company(ctx, corpCode)
	if err != nil {
		return nil, err
	}

	financials, err := r.Financials(ctx, corpCode, years)
	if err != nil {
		return nil, err
	}
	snapshot.Financials = financials
	snapshot.FinancialTrend = financialTrend(financials)
	return snapshot, nil
}

// Lookup returns the registry code of the company called name.
func (r *Registry) Lookup(ctx context.Context, name string) (string, error) {
	const op = "registry.lookup"

	name = strings.TrimSpace(name)
	if name == "" {
		return "", resilience.Errorf(resilience.KindValidation, op, "company name is required")
	}

	body, err := r.get(ctx, op, "/corpCode.json", url.Values{"corp_name": {name}})
	if err != nil {
		return "", err
	}

	var exact, first string
	gjson.GetBytes(body, "list").ForEach(func(_, item gjson.Result) bool {
		code := item.Get("corp_code").String()
		if first == "" {
			first = code
		}
		if item.Get("corp_name").String() == name {
			exact = code
			return false
		}
		return true
	})
	switch {
	case exact != "":
		return exact, nil
	case first != "":
		return first, nil
	default:
		return "", resilience.Errorf(resilience.KindValidation, op, "company %q is not registered", name)
	}
}

// Company returns the registry overview of corpCode.
func (r *Registry) Company(ctx context.Context, corpCode string) (*program.CompanySnapshot, error) {
	const op = "registry.company"

	body, err := r.get(ctx, op, "/company.json", url.Values{"corp_code": {corpCode}})
	if err != nil {
		return nil, err
	}

	snapshot := &program.CompanySnapshot{
		CorpCode:     corpCode,
		Name:         gjson.GetBytes(body, "corp_name").String(),
		Address:      strings.TrimSpace(gjson.GetBytes(body, "adres").String()),
		BusinessType: strings.TrimSpace(gjson.GetBytes(body, "induty_code").String()),
	}
	if est := gjson.GetBytes(body, "est_dt").String(); len(est) >= 4 {
		snapshot.FoundingYear, _ = strconv.Atoi(est[:4])
	}
	return snapshot, nil
}

// Financials returns annual statements for the last years completed fiscal
// years, oldest first. Years without a filing are skipped.
func (r *Registry) Financials(ctx context.Context, corpCode string, years int) ([]program.FinancialStatement, error) {
	const op = "registry.financials"

	years = ClampYears(years)
	last := r.now().Year() - 1

	var statements []program.FinancialStatement
	for year := last - years + 1; year <= last; year++ {
		body, err := r.get(ctx, op, "/fnlttSinglAcnt.json", url.Values{
			"corp_code":  {corpCode},
			"bsns_year":  {strconv.Itoa(year)},
			"reprt_code": {annualReport},
		})
		if err != nil {
			return nil, err
		}
		if body == nil {
			continue
		}

		statement := program.FinancialStatement{Year: year}
		seen := map[string]bool{}
		gjson.GetBytes(body, "list").ForEach(func(_, item gjson.Result) bool {
			account := strings.TrimSpace(item.Get("account_nm").String())
			set, ok := registryAccounts[account]
			if !ok || seen[account] {
				return true
			}
			seen[account] = true
			set(&statement, parseAmount(item.Get("thstrm_amount").String()))
			return true
		})
		if len(seen) > 0 {
			statements = append(statements, statement)
		}
	}
	return statements, nil
}

// get calls the registry and maps its status envelope. A "no data" status
// returns a nil body without error.
func (r *Registry) get(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	settings := r.settings.Source(config.SourceRegistry)
	key, err := credential(config.SourceRegistry, settings)
	if err != nil {
		return nil, err
	}
	q.Set("crtfc_key", key)

	resp, err := r.client.Get(ctx, settings, strings.TrimRight(settings.BaseURL, "/")+path, q)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, resilience.Errorf(resilience.KindUpstream, op, "response is not valid JSON")
	}

	status := gjson.GetBytes(resp.Body, "status").String()
	message := gjson.GetBytes(resp.Body, "message").String()
	switch status {
	case registryOK, "":
		return resp.Body, nil
	case registryNoData:
		return nil, nil
	case registryBadKey, registryKeyDisabled, registryIPDenied:
		return nil, resilience.Errorf(resilience.KindAuth, op, "registry status %s: %s", status, message)
	case registryOverLimit:
		return nil, resilience.Errorf(resilience.KindQuotaExceeded, op, "registry status %s: %s", status, message)
	case registryBadField:
		return nil, resilience.Errorf(resilience.KindValidation, op, "registry status %s: %s", status, message)
	default:
		return nil, resilience.Errorf(resilience.KindUpstream, op, "registry status %s: %s", status, message)
	}
}

func parseAmount(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// financialTrend summarises revenue movement between the first and last
// statement.
func financialTrend(statements []program.FinancialStatement) string {
	if len(statements) < 2 {
		return ""
	}
	first, last := statements[0], statements[len(statements)-1]
	if first.Revenue <= 0 {
		return ""
	}
	change := float64(last.Revenue-first.Revenue) / float64(first.Revenue) * 100
	direction := "증가"
	if change < 0 {
		direction = "감소"
	}
	return fmt.Sprintf("%d-%d 매출 %s (%+.1f%%)", first.Year, last.Year, direction, change)
}
