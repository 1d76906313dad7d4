package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/grantfit/internal/aggregator"
	"github.com/spigell/grantfit/internal/jobs"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/progress"
	"github.com/spigell/grantfit/internal/resilience"
	"github.com/spigell/grantfit/internal/sources"
)

const defaultRequestTimeout = 2 * time.Minute

// ScanRequest starts a scan. Profile falls back to the configured company.
type ScanRequest struct {
	Profile *program.CompanyProfile `json:"profile"`
	aggregator.Request
}

// AnalyzeRequest scores one program.
type AnalyzeRequest struct {
	Profile *program.CompanyProfile `json:"profile"`
	Program *program.Program        `json:"program" validate:"required"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScanStream(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !s.decode(w, r, &req) {
		return
	}
	profile, ok := s.profile(w, req.Profile)
	if !ok {
		return
	}
	if err := s.validator.Validate(req.Request); err != nil {
		s.failResponse(w, err)
		return
	}

	job := jobs.NewScanJob()
	w.Header().Set(JobIDHeader, job.ID())
	sse, err := progress.NewSSE(r.Context(), w, s.logger)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.runner.Scan(r.Context(), job, profile, req.Request, sse)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	profile, ok := s.profile(w, req.Profile)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	result, err := s.runner.Analyze(ctx, profile, req.Program)
	if err != nil {
		s.failResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	profile, ok := s.profile(w, req.Profile)
	if !ok {
		return
	}

	job := jobs.NewScanJob()
	w.Header().Set(JobIDHeader, job.ID())
	sse, err := progress.NewSSE(r.Context(), w, s.logger)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The outcome already went out as the terminal event.
	_, _ = s.runner.AnalyzeStream(r.Context(), job, profile, req.Program, sse)
}

func (s *Server) handleFinancials(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		s.failResponse(w, resilience.Errorf(resilience.KindValidation, "financials", "name is required"))
		return
	}
	years := 0
	if raw := r.URL.Query().Get("years"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.failResponse(w, resilience.Errorf(resilience.KindValidation, "financials", "years must be an integer"))
			return
		}
		years = sources.ClampYears(n)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	snapshot, err := resilience.Retry(ctx, "financials", s.store.RetryPolicy(), func(ctx context.Context) (*program.CompanySnapshot, error) {
		return s.registry.Snapshot(ctx, name, years)
	})
	if err != nil {
		s.failResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, snapshot)
}

// handleOpendata proxies the open data provider. The body is passed through
// untouched, XML included.
func (s *Server) handleOpendata(w http.ResponseWriter, r *http.Request) {
	endpoint := "/" + r.PathValue("path")

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	resp, err := s.opendata.FetchRaw(ctx, endpoint, r.URL.Query())
	if err != nil {
		s.failResponse(w, err)
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// profile resolves the request profile and validates it.
func (s *Server) profile(w http.ResponseWriter, p *program.CompanyProfile) (*program.CompanyProfile, bool) {
	if p == nil {
		p = s.store.Get().Company
	}
	if p == nil {
		s.errorResponse(w, http.StatusBadRequest, "validation error: profile - required")
		return nil, false
	}
	if err := s.validate.Struct(p); err != nil {
		s.errorResponse(w, http.StatusBadRequest, validationMessage(err))
		return nil, false
	}
	return p, true
}

func (s *Server) requestTimeout() time.Duration {
	if t := s.store.Get().Server.Timeout; t > 0 {
		return t
	}
	return defaultRequestTimeout
}
