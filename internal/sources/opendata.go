package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/resilience"
)

// Datasets on the open data provider name their columns freely, so every
// program field is looked up by a list of known column names.
var opendataColumns = struct {
	name, organizer, department, supportType, description, endDate, target, regions, url, budget, grant []string
}{
	name:        []string{"사업명", "지원사업명", "공고명", "programName"},
	organizer:   []string{"주관기관", "소관기관", "기관명", "organizer"},
	department:  []string{"담당부서", "부서명", "department"},
	supportType: []string{"지원분야", "사업유형", "지원유형", "supportType"},
	description: []string{"사업개요", "사업내용", "지원내용", "description"},
	endDate:     []string{"마감일", "접수마감일", "신청종료일", "종료일", "신청기간", "officialEndDate"},
	target:      []string{"지원대상", "신청대상", "targetAudience"},
	regions:     []string{"지역", "지원지역", "applicableRegions"},
	url:         []string{"URL", "상세URL", "링크", "url"},
	budget:      []string{"총예산", "예산", "totalBudget"},
	grant:       []string{"지원금액", "지원규모", "expectedGrant"},
}

// Opendata reads program datasets from the public open data provider.
type Opendata struct {
	settings SettingsProvider
	client   *Client
	logger   *zap.Logger
}

func NewOpendata(settings SettingsProvider, log *zap.Logger) *Opendata {
	log = logger.WithSource(log, config.SourceOpendata)
	return &Opendata{
		settings: settings,
		client:   NewClient(config.SourceOpendata, log),
		logger:   log,
	}
}

func (o *Opendata) Name() string { return config.SourceOpendata }

// FetchRaw requests endpoint and returns the provider body untouched. It serves
// the proxy endpoint, which relays XML and JSON alike. q is forwarded after the
// service key is added.
func (o *Opendata) FetchRaw(ctx context.Context, endpoint string, q url.Values) (*Response, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	settings := o.settings.Source(config.SourceOpendata)
	key, err := credential(config.SourceOpendata, settings)
	if err != nil {
		return nil, err
	}

	forwarded := url.Values{}
	for k, v := range q {
		if k == "serviceKey" {
			continue
		}
		forwarded[k] = append([]string(nil), v...)
	}
	forwarded.Set("serviceKey", key)

	return o.client.Get(ctx, settings, strings.TrimRight(settings.BaseURL, "/")+endpoint, forwarded)
}

func (o *Opendata) Fetch(ctx context.Context, params Params) ([]*program.Program, error) {
	const op = "opendata.fetch"

	settings := o.settings.Source(config.SourceOpendata)
	endpoint := params.Endpoint
	if endpoint == "" {
		endpoint = settings.Endpoint
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page(params)))
	q.Set("perPage", strconv.Itoa(perPage(params, settings)))
	q.Set("returnType", "JSON")

	resp, err := o.FetchRaw(ctx, endpoint, q)
	if err != nil {
		return nil, err
	}
	if perr := dataPortalError(op, resp.Body); perr != nil {
		return nil, perr
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, resilience.Errorf(resilience.KindUpstream, op, "response is not valid JSON (content type %q)", resp.ContentType)
	}

	data := gjson.GetBytes(resp.Body, "data")
	if !data.IsArray() {
		return nil, resilience.Errorf(resilience.KindUpstream, op, "response has no data array")
	}

	var programs []*program.Program
	data.ForEach(func(_, row gjson.Result) bool {
		if p := opendataProgram(row); p != nil {
			programs = append(programs, p)
		}
		return true
	})
	o.logger.Debug("fetched programs", zap.Int("count", len(programs)), zap.String("endpoint", endpoint))
	return programs, nil
}

func opendataProgram(row gjson.Result) *program.Program {
	col := opendataColumns
	name := column(row, col.name)
	if name == "" {
		return nil
	}
	return &program.Program{
		Name:           name,
		Organizer:      column(row, col.organizer),
		Department:     column(row, col.department),
		SupportType:    column(row, col.supportType),
		Description:    StripHTML(column(row, col.description)),
		EndDate:        column(row, col.endDate),
		TargetAudience: column(row, col.target),
		Regions:        splitList(column(row, col.regions)),
		URL:            column(row, col.url),
		TotalBudget:    column(row, col.budget),
		ExpectedGrant:  column(row, col.grant),
		Sources:        []string{config.SourceOpendata},
	}
}

// column returns the first non-empty value among the candidate keys.
func column(row gjson.Result, keys []string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(row.Get(gjson.Escape(key)).String()); v != "" {
			return v
		}
	}
	return ""
}
