package sources

import "testing"

func TestStripHTML(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"plain   text", "plain text"},
		{"<p>첫 줄</p><p>둘째&nbsp;줄</p>", "첫 줄\n둘째 줄"},
		{"지원 내용<br>- 자금<br/>- 멘토링", "지원 내용\n- 자금\n- 멘토링"},
		{"<div><script>alert(1)</script>본문 &amp; 요약</div>", "본문 & 요약"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := StripHTML(tc.in); got != tc.want {
			t.Fatalf("StripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
