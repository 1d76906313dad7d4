package program

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var (
	dateRangeSep = regexp.MustCompile(`\s*[~∼]\s*`)
	dateDigits   = regexp.MustCompile(`(\d{4})[.\-/년\s]*(\d{1,2})[.\-/월\s]*(\d{1,2})`)
)

// Normalize rewrites region and date fields into canonical form. It is applied
// once per merged record, never per source.
func Normalize(p *Program) {
	if end, ok := NormalizeDate(p.EndDate); ok {
		p.EndDate = end
	} else {
		p.EndDate = strings.TrimSpace(p.EndDate)
	}
	p.Regions = NormalizeRegions(p.Regions)
}

// NormalizeDate parses provider date spellings ("20240131", "2024.01.31",
// "2024-01-31 18:00", "20240101 ~ 20240131") into YYYY-MM-DD. Ranges yield
// their end. Unparseable input reports false.
func NormalizeDate(raw string) (string, bool) {
	t, ok := parseDate(raw)
	if !ok {
		return "", false
	}
	return t.Format(dateLayout), true
}

// EndTime parses the program end date, reporting false when absent or
// unparseable.
func (p *Program) EndTime() (time.Time, bool) {
	return parseDate(p.EndDate)
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if parts := dateRangeSep.Split(raw, -1); len(parts) > 1 {
		raw = parts[len(parts)-1]
	}

	m := dateDigits.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-1-2", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Nationwide is the canonical region for programs open everywhere.
const Nationwide = "전국"

var regionSuffixes = []string{"특별자치시", "특별자치도", "특별시", "광역시", "도", "시"}

// regionGroups lists aliases per canonical region; the first entry is the
// canonical name.
var regionGroups = [][]string{
	{"서울", "seoul"},
	{"부산", "busan"},
	{"대구", "daegu"},
	{"인천", "incheon"},
	{"광주", "gwangju"},
	{"대전", "daejeon"},
	{"울산", "ulsan"},
	{"세종", "sejong"},
	{"경기", "gyeonggi"},
	{"강원", "gangwon"},
	{"충북", "충청북", "chungbuk"},
	{"충남", "충청남", "chungnam"},
	{"전북", "전라북", "jeonbuk"},
	{"전남", "전라남", "jeonnam"},
	{"경북", "경상북", "gyeongbuk"},
	{"경남", "경상남", "gyeongnam"},
	{"제주", "jeju"},
	{Nationwide, "전지역", "nationwide", "all"},
}

var regionSynonyms = func() map[string]string {
	m := make(map[string]string)
	for _, group := range regionGroups {
		for _, alias := range group {
			m[alias] = group[0]
		}
	}
	return m
}()

// NormalizeRegion maps a region or address onto its canonical short name. The
// first token of an address is used; administrative suffixes are stripped and
// synonyms resolved. Unknown regions come back trimmed but otherwise intact.
func NormalizeRegion(raw string) string {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return ""
	}
	token := strings.ToLower(strings.Trim(fields[0], ",()[]"))

	if canonical, ok := regionSynonyms[token]; ok {
		return canonical
	}
	for _, suffix := range regionSuffixes {
		stripped := strings.TrimSuffix(token, suffix)
		if stripped == token || stripped == "" {
			continue
		}
		if canonical, ok := regionSynonyms[stripped]; ok {
			return canonical
		}
	}
	return fields[0]
}

// NormalizeRegions normalizes and deduplicates a region list, keeping order.
func NormalizeRegions(regions []string) []string {
	if len(regions) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(regions))
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		for _, part := range strings.FieldsFunc(r, func(c rune) bool { return c == ',' || c == '/' || c == '·' }) {
			n := NormalizeRegion(part)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// RegionMismatch reports whether a program restricted to specific regions
// excludes the company's address. Programs without regions, nationwide
// programs and companies without an address never mismatch.
func RegionMismatch(p *Program, profile *CompanyProfile) bool {
	if p == nil || profile == nil || len(p.Regions) == 0 {
		return false
	}
	company := NormalizeRegion(profile.Address)
	if company == "" {
		return false
	}
	for _, r := range NormalizeRegions(p.Regions) {
		if r == Nationwide || r == company {
			return false
		}
	}
	return true
}

func formatWon(v int64) string {
	const eok = 100_000_000
	if v >= eok {
		return fmt.Sprintf("%.1f억원", float64(v)/eok)
	}
	return fmt.Sprintf("%d원", v)
}
