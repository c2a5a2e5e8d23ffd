package render

import (
	"strings"
	"testing"

	"github.com/visanavi/vnavi/internal/askapi"
)

func fp(f float64) *float64 { return &f }

func TestFromResults_Empty(t *testing.T) {
	if got := FromResults(&askapi.ResultList{Results: []askapi.Result{}}); got != msgNoResults {
		t.Errorf("empty list = %q", got)
	}
	if got := FromResults(&askapi.ResultList{}); got != msgNoResults {
		t.Errorf("missing results = %q", got)
	}
	if got := FromResults(nil); got != msgNoResults {
		t.Errorf("nil = %q", got)
	}
}

func TestFromResults_SortsByRank(t *testing.T) {
	html := FromResults(&askapi.ResultList{Results: []askapi.Result{
		{Rank: 2, Title: "second"},
		{Rank: 1, Title: "first"},
		{Rank: 3, Title: "third"},
	}})

	i1 := strings.Index(html, "first")
	i2 := strings.Index(html, "second")
	i3 := strings.Index(html, "third")
	if i1 < 0 || i2 < 0 || i3 < 0 {
		t.Fatalf("titles missing from %q", html)
	}
	if !(i1 < i2 && i2 < i3) {
		t.Errorf("ranks out of order: %q", html)
	}
	if !strings.HasPrefix(html, "<ol>") || !strings.HasSuffix(html, "</ol>") {
		t.Errorf("not an ordered list: %q", html)
	}
}

func TestFromResults_Item(t *testing.T) {
	html := FromResults(&askapi.ResultList{Results: []askapi.Result{
		{
			Rank:      1,
			Score:     fp(0.8125),
			Title:     "在留資格",
			SourceURL: "https://example.com/doc?a=1&b=2",
			Text:      "本文です",
		},
	}})

	for _, want := range []string{
		"<strong>#1</strong>",
		`href="https://example.com/doc?a=1&amp;b=2"`,
		`target="_blank"`,
		`rel="noopener"`,
		"(score: 0.812)",
		`<div style="margin-top:4px">本文です</div>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in %q", want, html)
		}
	}
}

func TestFromResults_RankZeroDisplaysDash(t *testing.T) {
	html := FromResults(&askapi.ResultList{Results: []askapi.Result{{Title: "untitled"}}})
	if !strings.Contains(html, "<strong>#-</strong>") {
		t.Errorf("missing dash rank: %q", html)
	}
}

func TestFromResults_TitleFallbacks(t *testing.T) {
	html := FromResults(&askapi.ResultList{Results: []askapi.Result{
		{Rank: 1, SourcePath: `docs\visa\guide.pdf`},
		{Rank: 2},
	}})
	if !strings.Contains(html, ">guide.pdf</a>") {
		t.Errorf("path basename not used as title: %q", html)
	}
	if !strings.Contains(html, fallbackSourceTitle) {
		t.Errorf("fallback title missing: %q", html)
	}
}

func TestFromResults_EscapesMarkup(t *testing.T) {
	html := FromResults(&askapi.ResultList{Results: []askapi.Result{
		{
			Rank:      1,
			Title:     "<script>alert(1)</script>",
			SourceURL: `https://example.com/"><script>`,
			Text:      "a < b & c > d",
		},
	}})
	if strings.Contains(html, "<script>") {
		t.Fatalf("unescaped markup: %q", html)
	}
	for _, want := range []string{"&lt;script&gt;", "a &lt; b &amp; c &gt; d"} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in %q", want, html)
		}
	}
}

func TestFromAnswer(t *testing.T) {
	html := FromAnswer(&askapi.Answer{
		Answer: "一行目\n二行目",
		Sources: []askapi.Source{
			{Title: "手引き", URL: "https://example.com/guide"},
			{URL: "https://example.com/law"},
		},
	})

	if !strings.Contains(html, "一行目<br>二行目") {
		t.Errorf("newlines not converted: %q", html)
	}
	if !strings.Contains(html, "参考: ") {
		t.Errorf("references block missing: %q", html)
	}
	if !strings.Contains(html, ">手引き</a>") {
		t.Errorf("titled source missing: %q", html)
	}
	if !strings.Contains(html, ">"+fallbackSourceTitle+"</a>") {
		t.Errorf("fallback source label missing: %q", html)
	}
}

func TestFromAnswer_EmptyAndWhitespace(t *testing.T) {
	if got := FromAnswer(&askapi.Answer{Answer: "   \n  "}); got != msgNoAnswer {
		t.Errorf("whitespace answer = %q", got)
	}
	if got := FromAnswer(nil); got != msgNoAnswer {
		t.Errorf("nil = %q", got)
	}
}

func TestFromAnswer_EscapesAnswer(t *testing.T) {
	html := FromAnswer(&askapi.Answer{Answer: "<b>bold</b> & more"})
	if strings.Contains(html, "<b>") {
		t.Fatalf("unescaped markup: %q", html)
	}
	if !strings.Contains(html, "&lt;b&gt;bold&lt;/b&gt; &amp; more") {
		t.Errorf("escape output wrong: %q", html)
	}
}

func TestReply_Dispatch(t *testing.T) {
	results := &askapi.Reply{Results: &askapi.ResultList{Results: []askapi.Result{{Rank: 1, Title: "t"}}}}
	if got := Reply(results); !strings.HasPrefix(got, "<ol>") {
		t.Errorf("results reply = %q", got)
	}

	answer := &askapi.Reply{Answer: &askapi.Answer{Answer: "ok"}}
	if got := Reply(answer); got != "ok" {
		t.Errorf("answer reply = %q", got)
	}

	if got := Reply(&askapi.Reply{}); got != msgNoAnswer {
		t.Errorf("empty reply = %q", got)
	}
}
