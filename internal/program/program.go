// Package program holds the canonical records shared by connectors, the
// aggregator and the scoring engine.
package program

import (
	"encoding/json"
	"os"
	"strings"
	"unicode"
)

// Program is the canonical support program record. Connectors fill what their
// provider exposes and leave the rest empty.
type Program struct {
	Name                string   `json:"programName" validate:"required"`
	Organizer           string   `json:"organizer,omitempty"`
	SupportType         string   `json:"supportType,omitempty"`
	Description         string   `json:"description,omitempty"`
	ExpectedGrant       string   `json:"expectedGrant,omitempty"`
	EndDate             string   `json:"officialEndDate,omitempty"`
	EligibilityCriteria []string `json:"eligibilityCriteria,omitempty"`
	ExclusionCriteria   []string `json:"exclusionCriteria,omitempty"`
	TargetAudience      string   `json:"targetAudience,omitempty"`
	EvaluationCriteria  []string `json:"evaluationCriteria,omitempty"`
	RequiredDocuments   []string `json:"requiredDocuments,omitempty"`
	SupportDetails      string   `json:"supportDetails,omitempty"`
	SelectionProcess    []string `json:"selectionProcess,omitempty"`
	TotalBudget         string   `json:"totalBudget,omitempty"`
	ProjectPeriod       string   `json:"projectPeriod,omitempty"`
	Objectives          string   `json:"objectives,omitempty"`
	Categories          []string `json:"categories,omitempty"`
	Keywords            []string `json:"keywords,omitempty"`
	Department          string   `json:"department,omitempty"`
	Regions             []string `json:"applicableRegions,omitempty"`
	URL                 string   `json:"url,omitempty"`
	// Sources lists every connector that contributed to this record, in
	// priority order.
	Sources []string `json:"sources,omitempty"`
}

// Programs is an ordered program list.
type Programs struct {
	Items []*Program
}

func (p *Programs) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// Names returns the program names in order.
func (p *Programs) Names() []string {
	names := make([]string, 0, p.Len())
	for _, item := range p.Items {
		names = append(names, item.Name)
	}
	return names
}

// DumpToTmpFile writes the list as indented JSON into a new temp file.
func (p *Programs) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "programs_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// Key identifies a program across sources.
type Key struct {
	Name      string
	Organizer string
	EndDate   string
}

func (k Key) String() string {
	return k.Name + "|" + k.Organizer + "|" + k.EndDate
}

// Key builds the dedup key from normalized name, organizer and end date.
// Whitespace, punctuation and case are ignored; the date keeps digits only so
// "2024.01.31" and "20240131" collide.
func (p *Program) Key() Key {
	return Key{
		Name:      keyText(p.Name),
		Organizer: keyText(p.Organizer),
		EndDate:   keyDigits(p.EndDate),
	}
}

func keyText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if isKeyRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func keyDigits(s string) string {
	if end, ok := parseDate(s); ok {
		return end.Format("20060102")
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isKeyRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
