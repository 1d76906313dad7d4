package sources

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/resilience"
)

type countingServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newServer(t *testing.T, handler http.HandlerFunc) *countingServer {
	t.Helper()

	s := &countingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func storeWith(name string, sc *config.SourceConfig) *config.Store {
	sources := &config.SourcesConfig{}
	switch name {
	case config.SourceRegistry:
		sources.Registry = sc
	case config.SourceOpendata:
		sources.Opendata = sc
	case config.SourceBizinfo:
		sources.Bizinfo = sc
	case config.SourceKstartup:
		sources.Kstartup = sc
	}
	return config.NewStore(&config.Config{Sources: sources})
}

func requireKind(t *testing.T, err error, kind resilience.Kind) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var classified *resilience.Error
	if !errors.As(err, &classified) {
		t.Fatalf("expected *resilience.Error, got %T: %v", err, err)
	}
	if classified.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, classified.Kind, err)
	}
}
