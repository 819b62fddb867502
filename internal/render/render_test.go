package render

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRenderGolden(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"heading_paragraph", "# Limite\n\nSoit *f* une fonction.\n"},
		{"tight_list", "- continue\n- dérivable\n"},
		{"raw_html_escaped", "<script>alert(1)</script>\n"},
	}

	r := NewMarkdown()
	g := newGoldie(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g.Assert(t, tc.name, []byte(r.Render(tc.src)))
		})
	}
}

func TestRenderEmpty(t *testing.T) {
	if got := NewMarkdown().Render(""); got != "" {
		t.Errorf("Render(\"\") = %q, want empty", got)
	}
}
