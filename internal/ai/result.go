// Package ai defines the fit-scoring contract shared by reasoning backends:
// the result shape, its schema and range checks, and the weighting that turns
// a dimension vector into a fit score.
package ai

import (
	"context"
	"fmt"
	"math"

	"github.com/spigell/grantfit/internal/program"
)

// Eligibility is the overall eligibility classification.
type Eligibility string

const (
	Eligible          Eligibility = "eligible"
	PartiallyEligible Eligibility = "partially_eligible"
	Ineligible        Eligibility = "ineligible"
	Unclear           Eligibility = "unclear"
)

// Valid reports whether e is one of the defined classifications.
func (e Eligibility) Valid() bool {
	switch e {
	case Eligible, PartiallyEligible, Ineligible, Unclear:
		return true
	}
	return false
}

const (
	MinScore = 0
	MaxScore = 100
	// RegionMismatchPenalty is subtracted from eligibilityMatch when the
	// program's regions exclude the company.
	RegionMismatchPenalty = 30
)

// Dimensions is the five-dimension score vector, each within [0, 100].
type Dimensions struct {
	EligibilityMatch   int `json:"eligibilityMatch"`
	IndustryRelevance  int `json:"industryRelevance"`
	ScaleFit           int `json:"scaleFit"`
	Competitiveness    int `json:"competitiveness"`
	StrategicAlignment int `json:"strategicAlignment"`
}

type EligibilityDetails struct {
	Met     []string `json:"met"`
	Unmet   []string `json:"unmet"`
	Unclear []string `json:"unclear"`
}

// FitAnalysisResult is the outcome of scoring one program for one company.
type FitAnalysisResult struct {
	FitScore            int                `json:"fitScore"`
	Eligibility         Eligibility        `json:"eligibility"`
	Dimensions          Dimensions         `json:"dimensions"`
	EligibilityDetails  EligibilityDetails `json:"eligibilityDetails"`
	Strengths           []string           `json:"strengths"`
	Weaknesses          []string           `json:"weaknesses"`
	Advice              string             `json:"advice"`
	RecommendedStrategy string             `json:"recommendedStrategy"`
	KeyActions          []string           `json:"keyActions"`
	RegionMismatch      bool               `json:"regionMismatch"`
}

// Scorer produces a fit analysis for one (company, program) pair.
type Scorer interface {
	Score(ctx context.Context, profile *program.CompanyProfile, p *program.Program) (*FitAnalysisResult, error)
}

// Weights are the dimension weights of the fit score. They sum to 1.
type Weights struct {
	EligibilityMatch   float64 `mapstructure:"eligibility-match"`
	IndustryRelevance  float64 `mapstructure:"industry-relevance"`
	ScaleFit           float64 `mapstructure:"scale-fit"`
	Competitiveness    float64 `mapstructure:"competitiveness"`
	StrategicAlignment float64 `mapstructure:"strategic-alignment"`
}

func DefaultWeights() Weights {
	return Weights{
		EligibilityMatch:   0.30,
		IndustryRelevance:  0.25,
		ScaleFit:           0.15,
		Competitiveness:    0.15,
		StrategicAlignment: 0.15,
	}
}

// weightSumTolerance absorbs float noise in hand-written weight sets.
const weightSumTolerance = 1e-6

// IsZero reports whether no weight is set.
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// Validate rejects negative weights and sets that do not sum to 1.
func (w Weights) Validate() error {
	var sum float64
	for name, v := range w.named() {
		if v < 0 {
			return fmt.Errorf("weight %s must not be negative, got %v", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}

func (w Weights) named() map[string]float64 {
	return map[string]float64{
		"eligibility-match":   w.EligibilityMatch,
		"industry-relevance":  w.IndustryRelevance,
		"scale-fit":           w.ScaleFit,
		"competitiveness":     w.Competitiveness,
		"strategic-alignment": w.StrategicAlignment,
	}
}

// FitScore is the rounded weighted sum of d, clamped to [0, 100].
func (w Weights) FitScore(d Dimensions) int {
	sum := w.EligibilityMatch*float64(d.EligibilityMatch) +
		w.IndustryRelevance*float64(d.IndustryRelevance) +
		w.ScaleFit*float64(d.ScaleFit) +
		w.Competitiveness*float64(d.Competitiveness) +
		w.StrategicAlignment*float64(d.StrategicAlignment)
	return clamp(int(math.Round(sum)))
}

// Validate checks the result's ranges and classification.
func (r *FitAnalysisResult) Validate() error {
	if !r.Eligibility.Valid() {
		return fmt.Errorf("eligibility %q is not a known classification", r.Eligibility)
	}
	for name, v := range r.Dimensions.named() {
		if v < MinScore || v > MaxScore {
			return fmt.Errorf("dimension %s=%d is out of range", name, v)
		}
	}
	if r.FitScore < MinScore || r.FitScore > MaxScore {
		return fmt.Errorf("fitScore=%d is out of range", r.FitScore)
	}
	return nil
}

// Finalize applies the region annotation and derives the fit score from the
// dimension vector. Any fit score sent by the backend is replaced.
func (r *FitAnalysisResult) Finalize(w Weights, regionMismatch bool) {
	r.RegionMismatch = regionMismatch
	if regionMismatch {
		r.Dimensions.EligibilityMatch = clamp(r.Dimensions.EligibilityMatch - RegionMismatchPenalty)
	}
	r.FitScore = w.FitScore(r.Dimensions)
	r.EligibilityDetails.Met = nonNil(r.EligibilityDetails.Met)
	r.EligibilityDetails.Unmet = nonNil(r.EligibilityDetails.Unmet)
	r.EligibilityDetails.Unclear = nonNil(r.EligibilityDetails.Unclear)
	r.Strengths = nonNil(r.Strengths)
	r.Weaknesses = nonNil(r.Weaknesses)
	r.KeyActions = nonNil(r.KeyActions)
}

func (d Dimensions) named() map[string]int {
	return map[string]int{
		"eligibilityMatch":   d.EligibilityMatch,
		"industryRelevance":  d.IndustryRelevance,
		"scaleFit":           d.ScaleFit,
		"competitiveness":    d.Competitiveness,
		"strategicAlignment": d.StrategicAlignment,
	}
}

func clamp(v int) int {
	return max(MinScore, min(MaxScore, v))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
