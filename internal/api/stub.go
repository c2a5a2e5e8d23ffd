// Package api holds the serving surfaces of the client: a fixture-backed stub
// of the local development query service, and the MCP tool server.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/visanavi/vnavi/internal/askapi"
)

// StubDoc is one fixture document served by the stub backend.
type StubDoc struct {
	Title     string `json:"title"`
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
	// SourcePath is used when the document has no public URL.
	SourcePath string `json:"source_path"`
}

// defaultDocs keeps the stub useful with no fixtures file at all.
var defaultDocs = []StubDoc{
	{
		Title:     "在留資格の更新手続き",
		Text:      "在留期間の満了前に、地方出入国在留管理局で更新申請を行います。オンラインでも申請できます。",
		SourceURL: "https://example.com/docs/visa-renewal",
	},
	{
		Title:     "必要書類一覧",
		Text:      "申請書、写真、パスポート、在留カード、所属機関に関する資料が必要です。",
		SourceURL: "https://example.com/docs/required-documents",
	},
	{
		Title:     "手数料と標準処理期間",
		Text:      "手数料は収入印紙で納付します。標準処理期間は2週間から1か月です。",
		SourceURL: "https://example.com/docs/fees",
	},
}

// LoadFixtures reads stub documents from a JSON file: an array of StubDoc.
// An empty path selects the built-in sample set.
func LoadFixtures(path string) ([]StubDoc, error) {
	if path == "" {
		return defaultDocs, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	var docs []StubDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("fixtures file %s holds no documents", path)
	}
	return docs, nil
}

// NewStubHandler serves the development backend surface (GET /ping and
// GET /ask) from the given documents, producing the ranked-results shape.
func NewStubHandler(docs []StubDoc) http.Handler {
	r := chi.NewRouter()
	r.Get("/ping", handlePing)
	r.Get("/ask", handleAsk(docs))
	return r
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"ok": true})
}

func handleAsk(docs []StubDoc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "q is required"})
			return
		}
		k := askapi.TopK
		if raw := r.URL.Query().Get("k"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				k = n
			}
		}

		type scored struct {
			score float64
			doc   StubDoc
		}
		var hits []scored
		for _, d := range docs {
			if s := coverage(q, d.Title+" "+d.Text); s > 0 {
				hits = append(hits, scored{s, d})
			}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
		if len(hits) > k {
			hits = hits[:k]
		}

		results := make([]askapi.Result, len(hits))
		for i, h := range hits {
			score := h.score
			results[i] = askapi.Result{
				Rank:       i + 1,
				Score:      &score,
				Title:      h.doc.Title,
				SourceURL:  h.doc.SourceURL,
				SourcePath: h.doc.SourcePath,
				Text:       h.doc.Text,
			}
		}
		writeJSON(w, askapi.ResultList{OK: true, Count: len(results), Results: results})
	}
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func tokenize(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
		out[tok] = true
	}
	return out
}

// coverage scores a document by the share of query tokens it contains.
// Substring containment is accepted as well: CJK text tokenizes into long
// undelimited runs, so exact token equality alone would rarely match.
func coverage(query, doc string) float64 {
	tq := tokenize(query)
	if len(tq) == 0 {
		return 0
	}
	td := tokenize(doc)
	lower := strings.ToLower(doc)
	inter := 0
	for tok := range tq {
		if td[tok] || strings.Contains(lower, tok) {
			inter++
		}
	}
	return float64(inter) / float64(len(tq))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
