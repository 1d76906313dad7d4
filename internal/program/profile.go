package program

// CompanyProfile describes the applicant. The pipeline never mutates a profile
// it receives; enrichment produces a copy.
type CompanyProfile struct {
	Name                 string   `json:"name" mapstructure:"name" validate:"required"`
	Industry             string   `json:"industry,omitempty" mapstructure:"industry"`
	Description          string   `json:"description,omitempty" mapstructure:"description"`
	Revenue              string   `json:"revenue,omitempty" mapstructure:"revenue"`
	EmployeeCount        int      `json:"employeeCount,omitempty" mapstructure:"employee-count" validate:"gte=0"`
	Address              string   `json:"address,omitempty" mapstructure:"address"`
	Certifications       []string `json:"certifications,omitempty" mapstructure:"certifications"`
	CoreCompetencies     []string `json:"coreCompetencies,omitempty" mapstructure:"core-competencies"`
	IntellectualProperty []string `json:"intellectualProperty,omitempty" mapstructure:"intellectual-property"`
	FoundingYear         int      `json:"foundingYear,omitempty" mapstructure:"founding-year" validate:"omitempty,gte=1800,lte=2100"`
	BusinessType         string   `json:"businessType,omitempty" mapstructure:"business-type"`
	MainProducts         []string `json:"mainProducts,omitempty" mapstructure:"main-products"`
	FinancialTrend       string   `json:"financialTrend,omitempty" mapstructure:"financial-trend"`
}

// CompanySnapshot is what the company registry knows about a company.
type CompanySnapshot struct {
	CorpCode       string               `json:"corpCode"`
	Name           string               `json:"name"`
	Address        string               `json:"address,omitempty"`
	BusinessType   string               `json:"businessType,omitempty"`
	FoundingYear   int                  `json:"foundingYear,omitempty"`
	EmployeeCount  int                  `json:"employeeCount,omitempty"`
	Financials     []FinancialStatement `json:"financials,omitempty"`
	FinancialTrend string               `json:"financialTrend,omitempty"`
}

// FinancialStatement is one fiscal year of headline figures, in KRW.
type FinancialStatement struct {
	Year            int   `json:"year"`
	Revenue         int64 `json:"revenue"`
	OperatingIncome int64 `json:"operatingIncome"`
	NetIncome       int64 `json:"netIncome"`
}

// Enrich returns a copy of p where registry values replace overlapping fields.
// Registry data wins because it is authoritative for the company itself.
func (p *CompanyProfile) Enrich(s *CompanySnapshot) *CompanyProfile {
	out := *p
	out.Certifications = append([]string(nil), p.Certifications...)
	out.CoreCompetencies = append([]string(nil), p.CoreCompetencies...)
	out.IntellectualProperty = append([]string(nil), p.IntellectualProperty...)
	out.MainProducts = append([]string(nil), p.MainProducts...)
	if s == nil {
		return &out
	}

	if s.Address != "" {
		out.Address = s.Address
	}
	if s.BusinessType != "" {
		out.BusinessType = s.BusinessType
	}
	if s.FoundingYear > 0 {
		out.FoundingYear = s.FoundingYear
	}
	if s.EmployeeCount > 0 {
		out.EmployeeCount = s.EmployeeCount
	}
	if s.FinancialTrend != "" {
		out.FinancialTrend = s.FinancialTrend
	}
	if n := len(s.Financials); n > 0 && s.Financials[n-1].Revenue > 0 {
		out.Revenue = formatWon(s.Financials[n-1].Revenue)
	}
	return &out
}
