// Package sources holds the provider connectors. Each connector owns its
// provider's credential check, rate limit and error mapping; none of them
// retries, the aggregator wraps calls with the shared retry policy.
package sources

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/metrics"
	"github.com/spigell/grantfit/internal/resilience"
	"github.com/spigell/grantfit/internal/secrets"
	"github.com/spigell/grantfit/internal/utils"
)

const (
	userAgent       = "spigell/grantfit"
	contentEncoding = "gzip"
	logBodyLimit    = 500
)

// maxBodySize caps provider responses.
const maxBodySize = 32 << 20

// Response is a raw provider response.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Client issues rate-limited provider requests for one connector.
type Client struct {
	name       string
	logger     *zap.Logger
	HTTPClient *http.Client

	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewClient(name string, logger *zap.Logger) *Client {
	return &Client{
		name:       name,
		logger:     logger,
		HTTPClient: &http.Client{},
	}
}

// Get requests rawURL with q and returns the decoded body. Non-2xx statuses are
// mapped onto the error taxonomy; transport failures and timeouts are
// UpstreamError.
func (c *Client) Get(ctx context.Context, settings *config.SourceConfig, rawURL string, q url.Values) (*Response, error) {
	op := c.name + ".get"

	if err := c.wait(ctx, settings); err != nil {
		return nil, resilience.New(resilience.KindUpstream, op, err)
	}

	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, resilience.New(resilience.KindValidation, op, err)
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}
	c.setHeaders(req, settings)

	resp, err := c.request(req)
	if err != nil {
		c.observe(resilience.KindUpstream)
		return nil, resilience.New(resilience.KindUpstream, op, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		c.observe(resilience.KindUpstream)
		return nil, resilience.New(resilience.KindUpstream, op, fmt.Errorf("reading response: %w", err))
	}

	if err := statusError(op, resp, body); err != nil {
		c.observe(err.Kind)
		c.logger.Debug("provider rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("body", utils.TruncateForLog(string(body), logBodyLimit)),
		)
		return nil, err
	}

	c.observe("")
	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", redactURL(req.URL)))
	return c.HTTPClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request, settings *config.SourceConfig) {
	ua := settings.UserAgent
	if ua == "" {
		ua = userAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Encoding", contentEncoding)
}

// wait blocks on the connector's limiter. The limiter follows the settings of
// the current call so a config reload takes effect without a restart.
func (c *Client) wait(ctx context.Context, settings *config.SourceConfig) error {
	if settings.RatePerSecond <= 0 {
		return nil
	}
	burst := settings.Burst
	if burst <= 0 {
		burst = 1
	}

	c.mu.Lock()
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Limit(settings.RatePerSecond), burst)
	} else {
		if c.limiter.Limit() != rate.Limit(settings.RatePerSecond) {
			c.limiter.SetLimit(rate.Limit(settings.RatePerSecond))
		}
		if c.limiter.Burst() != burst {
			c.limiter.SetBurst(burst)
		}
	}
	limiter := c.limiter
	c.mu.Unlock()

	return limiter.Wait(ctx)
}

func (c *Client) observe(kind resilience.Kind) {
	outcome := "ok"
	if kind != "" {
		outcome = string(kind)
	}
	metrics.ConnectorRequests.WithLabelValues(c.name, outcome).Inc()
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(io.LimitReader(reader, maxBodySize))
}

func statusError(op string, resp *http.Response, body []byte) *resilience.Error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := fmt.Errorf("bad status: %s: %s", resp.Status, utils.TailForDisplay(string(body), 200))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return resilience.New(resilience.KindAuth, op, err)
	case http.StatusTooManyRequests:
		return resilience.New(resilience.KindQuotaExceeded, op, err)
	default:
		return resilience.New(resilience.KindUpstream, op, err)
	}
}

// credential resolves the connector key. A missing key is an AuthError raised
// before any request is built.
func credential(name string, settings *config.SourceConfig) (string, error) {
	op := name + ".credential"
	key, err := secrets.Load(secrets.Source{
		Name:  name + " api key",
		Value: settings.APIKey,
		File:  settings.APIKeyFile,
	})
	if err != nil {
		if errors.Is(err, secrets.ErrNotConfigured) {
			return "", resilience.New(resilience.KindAuth, op, err)
		}
		return "", resilience.New(resilience.KindAuth, op, fmt.Errorf("loading credential: %w", err))
	}
	return key, nil
}

var secretParams = []string{"serviceKey", "crtfcKey", "crtfc_key"}

func redactURL(u *url.URL) string {
	copied := *u
	q := copied.Query()
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
		}
	}
	copied.RawQuery = q.Encode()
	return copied.String()
}
