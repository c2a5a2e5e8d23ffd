// Package render converts backend replies into sanitized HTML fragments for
// the answer area.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/visanavi/vnavi/internal/askapi"
)

const (
	msgNoResults = "該当が見つかりませんでした。"
	msgNoAnswer  = "回答が取得できませんでした。"

	fallbackSourceTitle = "出典"
)

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape sanitizes externally supplied text for insertion into HTML.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Sink receives rendered HTML fragments. It stands in for the answer area of
// the page: every status, error, and result replaces its previous content.
type Sink interface {
	SetAnswer(html string)
}

// WriterSink writes each fragment to an io.Writer, one per line.
type WriterSink struct {
	W io.Writer
}

func (s *WriterSink) SetAnswer(html string) {
	fmt.Fprintln(s.W, html)
}

// Capture keeps only the most recent fragment. Used where the caller needs
// the final HTML back, such as the MCP surface.
type Capture struct {
	last string
}

func (c *Capture) SetAnswer(html string) { c.last = html }

// Last returns the most recently rendered fragment.
func (c *Capture) Last() string { return c.last }

// Reply renders a tagged reply by dispatching on which shape is present.
func Reply(r *askapi.Reply) string {
	switch {
	case r == nil:
		return msgNoAnswer
	case r.Results != nil:
		return FromResults(r.Results)
	case r.Answer != nil:
		return FromAnswer(r.Answer)
	}
	return msgNoAnswer
}

// FromResults renders the ranked-results shape as an ordered list. Entries
// are sorted ascending by rank; a missing rank sorts first and displays as
// "-". All externally supplied text is escaped.
func FromResults(data *askapi.ResultList) string {
	if data == nil || len(data.Results) == 0 {
		return msgNoResults
	}

	results := make([]askapi.Result, len(data.Results))
	copy(results, data.Results)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Rank < results[j].Rank
	})

	var b strings.Builder
	b.WriteString("<ol>")
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = baseName(r.SourcePath)
		}
		if title == "" {
			title = fallbackSourceTitle
		}

		link := r.SourceURL
		if link == "" {
			link = r.SourcePath
		}
		anchor := Escape(title)
		if link != "" {
			anchor = fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener">%s</a>`, Escape(link), Escape(title))
		}

		rank := "-"
		if r.Rank != 0 {
			rank = fmt.Sprintf("%d", r.Rank)
		}

		score := ""
		if r.Score != nil {
			score = fmt.Sprintf(" (score: %.3f)", *r.Score)
		}

		text := ""
		if r.Text != "" {
			text = fmt.Sprintf(`<div style="margin-top:4px">%s</div>`, Escape(r.Text))
		}

		fmt.Fprintf(&b, "<li><strong>#%s</strong> %s%s%s</li>", rank, anchor, score, text)
	}
	b.WriteString("</ol>")
	return b.String()
}

// FromAnswer renders the answer shape: the escaped answer text with newlines
// as line breaks, followed by a references block when sources are present.
func FromAnswer(data *askapi.Answer) string {
	ans := ""
	if data != nil {
		ans = strings.TrimSpace(data.Answer)
	}

	html := msgNoAnswer
	if ans != "" {
		html = strings.ReplaceAll(Escape(ans), "\n", "<br>")
	}

	if data == nil || len(data.Sources) == 0 {
		return html
	}

	links := make([]string, len(data.Sources))
	for i, src := range data.Sources {
		title := src.Title
		if title == "" {
			title = fallbackSourceTitle
		}
		links[i] = fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener">%s</a>`, Escape(src.URL), Escape(title))
	}
	refs := fmt.Sprintf(`<div style="margin-top:.75rem;font-size:.9em;color:#555">参考: %s</div>`, strings.Join(links, " / "))
	return html + refs
}

// baseName returns the last path segment, accepting both slash styles.
func baseName(p string) string {
	if p == "" {
		return ""
	}
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
