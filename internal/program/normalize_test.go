package program

import (
	"reflect"
	"testing"
)

func TestNormalizeDate(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"20240131", "2024-01-31"},
		{"2024.01.31", "2024-01-31"},
		{"2024-1-5", "2024-01-05"},
		{"2024-01-31 18:00", "2024-01-31"},
		{"20240101 ~ 20240131", "2024-01-31"},
		{"2024년 3월 2일", "2024-03-02"},
		{"2024-01-01 ~ 2024-12-31", "2024-12-31"},
	}
	for _, tc := range cases {
		got, ok := NormalizeDate(tc.in)
		if !ok || got != tc.want {
			t.Fatalf("NormalizeDate(%q) = %q, %v; want %q", tc.in, got, ok, tc.want)
		}
	}

	for _, bad := range []string{"", "상시모집", "2024-13-40"} {
		if _, ok := NormalizeDate(bad); ok {
			t.Fatalf("expected %q to be unparseable", bad)
		}
	}
}

func TestNormalizeKeepsUnparseableDateText(t *testing.T) {
	p := &Program{Name: "x", EndDate: " 예산 소진시까지 "}
	Normalize(p)
	if p.EndDate != "예산 소진시까지" {
		t.Fatalf("unparseable dates must be kept as text, got %q", p.EndDate)
	}
}

func TestNormalizeRegion(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"서울특별시 강남구 테헤란로 1", "서울"},
		{"경기도 성남시", "경기"},
		{"충청남도", "충남"},
		{"부산광역시", "부산"},
		{"세종특별자치시", "세종"},
		{"Seoul, Korea", "서울"},
		{"전국", Nationwide},
		{"  ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeRegion(tc.in); got != tc.want {
			t.Fatalf("NormalizeRegion(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRegionsSplitsAndDeduplicates(t *testing.T) {
	got := NormalizeRegions([]string{"서울, 경기도", "서울특별시", "부산/울산"})
	want := []string{"서울", "경기", "부산", "울산"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRegionMismatch(t *testing.T) {
	profile := &CompanyProfile{Name: "Acme", Address: "대전광역시 유성구"}

	cases := []struct {
		name    string
		regions []string
		want    bool
	}{
		{name: "no regions", regions: nil, want: false},
		{name: "nationwide", regions: []string{"전국"}, want: false},
		{name: "same region with suffix", regions: []string{"대전"}, want: false},
		{name: "other region", regions: []string{"서울", "경기"}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RegionMismatch(&Program{Name: "p", Regions: tc.regions}, profile); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if RegionMismatch(&Program{Regions: []string{"서울"}}, &CompanyProfile{Name: "no address"}) {
		t.Fatalf("unknown company address must not mismatch")
	}
}
