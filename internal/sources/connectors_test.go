package sources

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/resilience"
)

func TestConnectorsRequireCredentialBeforeAnyRequest(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	connectors := map[string]Connector{
		config.SourceBizinfo:  NewBizinfo(storeWith(config.SourceBizinfo, &config.SourceConfig{BaseURL: srv.URL}), zap.NewNop()),
		config.SourceKstartup: NewKstartup(storeWith(config.SourceKstartup, &config.SourceConfig{BaseURL: srv.URL}), zap.NewNop()),
		config.SourceOpendata: NewOpendata(storeWith(config.SourceOpendata, &config.SourceConfig{
			BaseURL:  srv.URL,
			Endpoint: "/15049270/v1/uddi:abc",
		}), zap.NewNop()),
	}

	for name, c := range connectors {
		t.Run(name, func(t *testing.T) {
			_, err := c.Fetch(context.Background(), Params{})
			requireKind(t, err, resilience.KindAuth)
		})
	}

	_, err := NewRegistry(storeWith(config.SourceRegistry, &config.SourceConfig{BaseURL: srv.URL}), zap.NewNop()).
		Snapshot(context.Background(), "Acme", 0)
	requireKind(t, err, resilience.KindAuth)

	assert.Zero(t, srv.hits.Load(), "no request may be issued without a credential")
}

func TestOpendataRejectsEscapingEndpointBeforeNetwork(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	o := NewOpendata(storeWith(config.SourceOpendata, &config.SourceConfig{BaseURL: srv.URL, APIKey: "k"}), zap.NewNop())

	_, err := o.Fetch(context.Background(), Params{Endpoint: "/15049270/v1/../escape"})
	requireKind(t, err, resilience.KindValidation)

	_, err = o.FetchRaw(context.Background(), "/15049270/v1/../escape", nil)
	requireKind(t, err, resilience.KindValidation)

	assert.Zero(t, srv.hits.Load())
}

func TestOpendataFetchParsesRows(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/15049270/v1/uddi:abc", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("serviceKey"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("perPage"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":2,"data":[
			{"사업명":"수출바우처","주관기관":"KOTRA","마감일":"2024-05-31","지역":"서울, 경기","지원대상":"중소기업"},
			{"사업명":"","주관기관":"skip"},
			{"공고명":"R&D 지원","기관명":"중기부","지원내용":"<p>연구개발</p>"}
		]}`))
	})
	o := NewOpendata(storeWith(config.SourceOpendata, &config.SourceConfig{
		BaseURL:  srv.URL + "/",
		APIKey:   "secret",
		Endpoint: "/15049270/v1/uddi:abc",
	}), zap.NewNop())

	programs, err := o.Fetch(context.Background(), Params{Page: 2})
	require.NoError(t, err)
	require.Len(t, programs, 2)

	assert.Equal(t, "수출바우처", programs[0].Name)
	assert.Equal(t, "KOTRA", programs[0].Organizer)
	assert.Equal(t, "2024-05-31", programs[0].EndDate)
	assert.Equal(t, []string{"서울", "경기"}, programs[0].Regions)
	assert.Equal(t, "중소기업", programs[0].TargetAudience)
	assert.Equal(t, []string{config.SourceOpendata}, programs[0].Sources)

	assert.Equal(t, "R&D 지원", programs[1].Name)
	assert.Equal(t, "연구개발", programs[1].Description)
	assert.Empty(t, programs[1].EndDate, "missing fields stay empty")
	assert.Nil(t, programs[1].Regions)
}

func TestOpendataFetchRawPassesXMLThrough(t *testing.T) {
	const xmlBody = `<?xml version="1.0" encoding="UTF-8"?><response><item><name>x</name></item></response>`
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "xml", r.URL.Query().Get("returnType"))
		assert.Equal(t, "k", r.URL.Query().Get("serviceKey"))
		w.Header().Set("Content-Type", "application/xml;charset=UTF-8")
		_, _ = w.Write([]byte(xmlBody))
	})
	o := NewOpendata(storeWith(config.SourceOpendata, &config.SourceConfig{BaseURL: srv.URL, APIKey: "k"}), zap.NewNop())

	resp, err := o.FetchRaw(context.Background(), "/15049270/v1/uddi:abc", url.Values{
		"returnType": {"xml"},
		"serviceKey": {"caller-supplied"},
	})
	require.NoError(t, err)
	assert.Equal(t, xmlBody, string(resp.Body))
	assert.Equal(t, "application/xml;charset=UTF-8", resp.ContentType)
}

func TestBizinfoFetch(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "biz-key", q.Get("crtfcKey"))
		assert.Equal(t, "1", q.Get("pageIndex"))
		assert.Equal(t, "100", q.Get("pageUnit"))
		assert.Equal(t, "json", q.Get("dataType"))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_ = json.NewEncoder(gz).Encode(map[string]any{
			"jsonArray": []map[string]any{{
				"pblancId":                   "PBLN_1",
				"pblancNm":                   "스마트공장 구축 지원",
				"jrsdInsttNm":                "중소벤처기업부",
				"excInsttNm":                 "스마트제조혁신추진단",
				"bsnsSumryCn":                "<p>스마트공장&nbsp;도입 지원</p>",
				"reqstBeginEndDe":            "20240101 ~ 20240131",
				"pblancUrl":                  "/web/lay1/view.do?pblancId=PBLN_1",
				"pldirSportRealmLclasCodeNm": "기술",
				"hashtags":                   "제조,스마트공장",
				"totCnt":                     12,
			}},
		})
	})
	b := NewBizinfo(storeWith(config.SourceBizinfo, &config.SourceConfig{BaseURL: srv.URL, APIKey: "biz-key"}), zap.NewNop())

	programs, err := b.Fetch(context.Background(), Params{})
	require.NoError(t, err)
	require.Len(t, programs, 1)

	p := programs[0]
	assert.Equal(t, "스마트공장 구축 지원", p.Name)
	assert.Equal(t, "중소벤처기업부", p.Organizer)
	assert.Equal(t, "스마트제조혁신추진단", p.Department)
	assert.Equal(t, "스마트공장 도입 지원", p.Description)
	assert.Equal(t, "20240101 ~ 20240131", p.EndDate, "dates are normalized after merge, not per source")
	assert.Equal(t, "https://www.bizinfo.go.kr/web/lay1/view.do?pblancId=PBLN_1", p.URL)
	assert.Equal(t, []string{"제조", "스마트공장"}, p.Keywords)
	assert.Equal(t, []string{"기술"}, p.Categories)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   resilience.Kind
	}{
		{status: http.StatusUnauthorized, kind: resilience.KindAuth},
		{status: http.StatusForbidden, kind: resilience.KindAuth},
		{status: http.StatusTooManyRequests, kind: resilience.KindQuotaExceeded},
		{status: http.StatusInternalServerError, kind: resilience.KindUpstream},
		{status: http.StatusNotFound, kind: resilience.KindUpstream},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.status)
			})
			b := NewBizinfo(storeWith(config.SourceBizinfo, &config.SourceConfig{BaseURL: srv.URL, APIKey: "k"}), zap.NewNop())

			_, err := b.Fetch(context.Background(), Params{})
			requireKind(t, err, tc.kind)
		})
	}
}

func TestClientTimeoutIsUpstream(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	b := NewBizinfo(storeWith(config.SourceBizinfo, &config.SourceConfig{
		BaseURL: srv.URL,
		APIKey:  "k",
		Timeout: 20 * time.Millisecond,
	}), zap.NewNop())

	_, err := b.Fetch(context.Background(), Params{})
	requireKind(t, err, resilience.KindUpstream)
}

func TestKstartupFetch(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "ks-key", q.Get("serviceKey"))
		assert.Equal(t, "3", q.Get("page"))
		assert.Equal(t, "10", q.Get("perPage"))

		_, _ = w.Write([]byte(`{"currentCount":1,"totalCount":1,"data":[{
			"biz_pbanc_nm":"예비창업패키지",
			"pbanc_ntrp_nm":"창업진흥원",
			"supt_biz_clsfc":"사업화",
			"pbanc_ctnt":"창업 사업화 자금 지원",
			"pbanc_rcpt_end_dt":"20240315",
			"supt_regin":"전국",
			"aply_trgt":"일반인",
			"biz_enyy":"예비창업자",
			"aply_excl_trgt_ctnt":"휴폐업 중인 자<br>국세 체납자",
			"detl_pg_url":"https://www.k-startup.go.kr/x"
		}]}`))
	})
	k := NewKstartup(storeWith(config.SourceKstartup, &config.SourceConfig{BaseURL: srv.URL, APIKey: "ks-key", PageSize: 50}), zap.NewNop())

	programs, err := k.Fetch(context.Background(), Params{Page: 3, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, programs, 1)

	p := programs[0]
	assert.Equal(t, "예비창업패키지", p.Name)
	assert.Equal(t, "창업진흥원", p.Organizer)
	assert.Equal(t, "20240315", p.EndDate)
	assert.Equal(t, []string{"전국"}, p.Regions)
	assert.Equal(t, "일반인", p.TargetAudience)
	assert.Equal(t, []string{"업력: 예비창업자"}, p.EligibilityCriteria)
	assert.Equal(t, []string{"휴폐업 중인 자", "국세 체납자"}, p.ExclusionCriteria)
}

func TestDataPortalInBandErrors(t *testing.T) {
	cases := []struct {
		body string
		kind resilience.Kind
	}{
		{`<OpenAPI_ServiceResponse><cmmMsgHeader><returnAuthMsg>SERVICE_KEY_IS_NOT_REGISTERED_ERROR</returnAuthMsg></cmmMsgHeader></OpenAPI_ServiceResponse>`, resilience.KindAuth},
		{`<OpenAPI_ServiceResponse><cmmMsgHeader><returnAuthMsg>LIMITED_NUMBER_OF_SERVICE_REQUESTS_EXCEEDS_ERROR</returnAuthMsg></cmmMsgHeader></OpenAPI_ServiceResponse>`, resilience.KindQuotaExceeded},
		{`{"code":-4,"msg":"등록되지 않은 인증키 입니다."}`, resilience.KindAuth},
		{`{"code":-1,"msg":"시스템 에러"}`, resilience.KindUpstream},
		{`{"unexpected":true}`, resilience.KindUpstream},
	}

	for _, tc := range cases {
		srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(tc.body))
		})
		k := NewKstartup(storeWith(config.SourceKstartup, &config.SourceConfig{BaseURL: srv.URL, APIKey: "k"}), zap.NewNop())

		_, err := k.Fetch(context.Background(), Params{})
		requireKind(t, err, tc.kind)
	}
}
