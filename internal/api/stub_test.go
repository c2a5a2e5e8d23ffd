package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/visanavi/vnavi/internal/askapi"
)

func newStubServer(t *testing.T, docs []StubDoc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewStubHandler(docs))
	t.Cleanup(srv.Close)
	return srv
}

func getList(t *testing.T, rawURL string) (int, askapi.ResultList) {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	var list askapi.ResultList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil && resp.StatusCode == http.StatusOK {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode, list
}

func TestStubPing(t *testing.T) {
	srv := newStubServer(t, defaultDocs)

	resp, err := http.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatalf("GET /ping: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !body["ok"] {
		t.Error("expected ok=true")
	}
}

func TestStubAsk_RankedResults(t *testing.T) {
	srv := newStubServer(t, defaultDocs)

	status, list := getList(t, srv.URL+"/ask?q="+url.QueryEscape("在留資格の更新手続き"))
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !list.OK {
		t.Error("expected ok=true")
	}
	if list.Count == 0 || len(list.Results) == 0 {
		t.Fatal("expected at least one result")
	}
	if list.Count != len(list.Results) {
		t.Errorf("count %d does not match %d results", list.Count, len(list.Results))
	}
	for i, r := range list.Results {
		if r.Rank != i+1 {
			t.Errorf("result %d has rank %d", i, r.Rank)
		}
		if r.Score == nil {
			t.Errorf("result %d has no score", i)
		}
	}
	if list.Results[0].Title != "在留資格の更新手続き" {
		t.Errorf("expected best match first, got %q", list.Results[0].Title)
	}
}

func TestStubAsk_TopK(t *testing.T) {
	docs := []StubDoc{
		{Title: "visa renewal guide", Text: "renewal steps"},
		{Title: "visa renewal fees", Text: "renewal fees"},
		{Title: "visa renewal forms", Text: "renewal forms"},
		{Title: "visa renewal photos", Text: "renewal photos"},
	}
	srv := newStubServer(t, docs)

	_, list := getList(t, srv.URL+"/ask?q=renewal&k=2")
	if len(list.Results) != 2 {
		t.Fatalf("expected 2 results with k=2, got %d", len(list.Results))
	}

	// A malformed k falls back to the default cutoff.
	_, list = getList(t, srv.URL+"/ask?q=renewal&k=zero")
	if len(list.Results) != askapi.TopK {
		t.Fatalf("expected %d results with bad k, got %d", askapi.TopK, len(list.Results))
	}
}

func TestStubAsk_MissingQuery(t *testing.T) {
	srv := newStubServer(t, defaultDocs)

	status, _ := getList(t, srv.URL+"/ask")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestStubAsk_NoMatches(t *testing.T) {
	srv := newStubServer(t, defaultDocs)

	status, list := getList(t, srv.URL+"/ask?q=zzzzzz")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if list.Count != 0 {
		t.Errorf("expected no results, got %d", list.Count)
	}
}

func TestLoadFixtures(t *testing.T) {
	docs, err := LoadFixtures("")
	if err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if len(docs) == 0 {
		t.Fatal("expected built-in documents")
	}

	path := filepath.Join(t.TempDir(), "docs.json")
	content := `[{"title":"t","text":"x","source_url":"https://example.com/t"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	docs, err = LoadFixtures(path)
	if err != nil {
		t.Fatalf("LoadFixtures: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "t" {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(empty, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixtures(empty); err == nil {
		t.Fatal("expected error for empty fixtures file")
	}

	if _, err := LoadFixtures(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
