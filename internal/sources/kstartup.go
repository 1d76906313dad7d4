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

// Kstartup reads the startup support announcement listing.
type Kstartup struct {
	settings SettingsProvider
	client   *Client
	logger   *zap.Logger
}

func NewKstartup(settings SettingsProvider, log *zap.Logger) *Kstartup {
	log = logger.WithSource(log, config.SourceKstartup)
	return &Kstartup{
		settings: settings,
		client:   NewClient(config.SourceKstartup, log),
		logger:   log,
	}
}

func (k *Kstartup) Name() string { return config.SourceKstartup }

func (k *Kstartup) Fetch(ctx context.Context, params Params) ([]*program.Program, error) {
	const op = "kstartup.fetch"

	settings := k.settings.Source(config.SourceKstartup)
	key, err := credential(config.SourceKstartup, settings)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("serviceKey", key)
	q.Set("returnType", "json")
	q.Set("page", strconv.Itoa(page(params)))
	q.Set("perPage", strconv.Itoa(perPage(params, settings)))

	resp, err := k.client.Get(ctx, settings, settings.BaseURL, q)
	if err != nil {
		return nil, err
	}
	if perr := dataPortalError(op, resp.Body); perr != nil {
		return nil, perr
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, resilience.Errorf(resilience.KindUpstream, op, "response is not valid JSON")
	}

	data := gjson.GetBytes(resp.Body, "data")
	if !data.IsArray() {
		return nil, resilience.Errorf(resilience.KindUpstream, op, "response has no data array")
	}

	var programs []*program.Program
	data.ForEach(func(_, row gjson.Result) bool {
		if p := kstartupProgram(row); p != nil {
			programs = append(programs, p)
		}
		return true
	})
	k.logger.Debug("fetched programs",
		zap.Int("count", len(programs)),
		zap.Int64("total", gjson.GetBytes(resp.Body, "totalCount").Int()),
	)
	return programs, nil
}

func kstartupProgram(row gjson.Result) *program.Program {
	name := strings.TrimSpace(row.Get("biz_pbanc_nm").String())
	if name == "" {
		return nil
	}
	p := &program.Program{
		Name:           name,
		Organizer:      strings.TrimSpace(row.Get("pbanc_ntrp_nm").String()),
		Department:     strings.TrimSpace(row.Get("biz_prch_dprt_nm").String()),
		SupportType:    strings.TrimSpace(row.Get("supt_biz_clsfc").String()),
		Description:    StripHTML(row.Get("pbanc_ctnt").String()),
		EndDate:        strings.TrimSpace(row.Get("pbanc_rcpt_end_dt").String()),
		TargetAudience: strings.TrimSpace(row.Get("aply_trgt_ctnt").String()),
		Regions:        splitList(row.Get("supt_regin").String()),
		URL:            strings.TrimSpace(row.Get("detl_pg_url").String()),
		Sources:        []string{config.SourceKstartup},
	}
	if p.TargetAudience == "" {
		p.TargetAudience = strings.TrimSpace(row.Get("aply_trgt").String())
	}
	if age := strings.TrimSpace(row.Get("biz_enyy").String()); age != "" {
		p.EligibilityCriteria = []string{"업력: " + age}
	}
	if excl := StripHTML(row.Get("aply_excl_trgt_ctnt").String()); excl != "" {
		p.ExclusionCriteria = strings.Split(excl, "\n")
	}
	if p.SupportType != "" {
		p.Categories = []string{p.SupportType}
	}
	return p
}
