package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/resilience"
)

const bizinfoSite = "https://www.bizinfo.go.kr"

type bizinfoResponse struct {
	Items  *[]map[string]any `json:"jsonArray"`
	ReqErr string            `json:"reqErr"`
}

type bizinfoItem struct {
	ID        string `json:"pblancId"`
	Name      string `json:"pblancNm"`
	Organizer string `json:"jrsdInsttNm"`
	Executor  string `json:"excInsttNm"`
	Summary   string `json:"bsnsSumryCn"`
	Period    string `json:"reqstBeginEndDe"`
	URL       string `json:"pblancUrl"`
	Field     string `json:"pldirSportRealmLclasCodeNm"`
	Target    string `json:"trgetNm"`
	Hashtags  string `json:"hashtags"`
}

// Bizinfo reads the government business support listing.
type Bizinfo struct {
	settings SettingsProvider
	client   *Client
	logger   *zap.Logger
}

func NewBizinfo(settings SettingsProvider, log *zap.Logger) *Bizinfo {
	log = logger.WithSource(log, config.SourceBizinfo)
	return &Bizinfo{
		settings: settings,
		client:   NewClient(config.SourceBizinfo, log),
		logger:   log,
	}
}

func (b *Bizinfo) Name() string { return config.SourceBizinfo }

func (b *Bizinfo) Fetch(ctx context.Context, params Params) ([]*program.Program, error) {
	settings := b.settings.Source(config.SourceBizinfo)
	key, err := credential(config.SourceBizinfo, settings)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("crtfcKey", key)
	q.Set("dataType", "json")
	q.Set("pageIndex", strconv.Itoa(page(params)))
	q.Set("pageUnit", strconv.Itoa(perPage(params, settings)))

	resp, err := b.client.Get(ctx, settings, settings.BaseURL, q)
	if err != nil {
		return nil, err
	}

	items, err := decodeBizinfo(resp.Body)
	if err != nil {
		return nil, err
	}

	programs := make([]*program.Program, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			continue
		}
		programs = append(programs, item.program())
	}
	b.logger.Debug("fetched programs", zap.Int("count", len(programs)))
	return programs, nil
}

func decodeBizinfo(body []byte) ([]*bizinfoItem, error) {
	const op = "bizinfo.decode"

	var response bizinfoResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, resilience.New(resilience.KindUpstream, op, err)
	}
	if response.Items == nil {
		if response.ReqErr != "" {
			return nil, providerMessageError(op, response.ReqErr)
		}
		return nil, resilience.Errorf(resilience.KindUpstream, op, "response has no jsonArray")
	}

	var items []*bizinfoItem
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &items,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, resilience.New(resilience.KindUpstream, op, err)
	}
	if err := decoder.Decode(*response.Items); err != nil {
		return nil, resilience.New(resilience.KindUpstream, op, fmt.Errorf("decoding items: %w", err))
	}
	return items, nil
}

func (i *bizinfoItem) program() *program.Program {
	p := &program.Program{
		Name:           strings.TrimSpace(i.Name),
		Organizer:      strings.TrimSpace(i.Organizer),
		Department:     strings.TrimSpace(i.Executor),
		Description:    StripHTML(i.Summary),
		EndDate:        strings.TrimSpace(i.Period),
		SupportType:    strings.TrimSpace(i.Field),
		TargetAudience: strings.TrimSpace(i.Target),
		Keywords:       splitList(i.Hashtags),
		Sources:        []string{config.SourceBizinfo},
	}
	if p.SupportType != "" {
		p.Categories = []string{p.SupportType}
	}
	if u := strings.TrimSpace(i.URL); u != "" {
		if strings.HasPrefix(u, "/") {
			u = bizinfoSite + u
		}
		p.URL = u
	}
	return p
}

// providerMessageError maps an in-band provider error message.
func providerMessageError(op, msg string) *resilience.Error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "인증") || strings.Contains(lower, "key"):
		return resilience.Errorf(resilience.KindAuth, op, "provider error: %s", msg)
	case strings.Contains(lower, "초과") || strings.Contains(lower, "limit"):
		return resilience.Errorf(resilience.KindQuotaExceeded, op, "provider error: %s", msg)
	default:
		return resilience.Errorf(resilience.KindUpstream, op, "provider error: %s", msg)
	}
}
