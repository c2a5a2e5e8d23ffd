package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/visanavi/vnavi/internal/api"
)

// testEnv points config at temp dirs and a fixture backend so commands can
// run hermetically.
func testEnv(t *testing.T, siteURL, devBase string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("VNAVI_SITE_URL", siteURL)
	if devBase != "" {
		t.Setenv("VNAVI_API_DEV_BASE_URL", devBase)
	}
}

func newFixtureBackend(t *testing.T) *httptest.Server {
	t.Helper()
	docs, err := api.LoadFixtures("")
	if err != nil {
		t.Fatalf("LoadFixtures: %v", err)
	}
	srv := httptest.NewServer(api.NewStubHandler(docs))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewApp_DevMode(t *testing.T) {
	backend := newFixtureBackend(t)
	testEnv(t, "http://127.0.0.1:8080", backend.URL)

	app, err := newApp(false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()

	if !app.mode.IsDev() {
		t.Error("expected development mode for a 127.0.0.1 site")
	}
	if app.base != backend.URL {
		t.Errorf("base = %q, want %q", app.base, backend.URL)
	}

	ok, err := app.client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !ok {
		t.Error("expected backend to report ok")
	}
}

func TestNewApp_ProdMode(t *testing.T) {
	testEnv(t, "https://visanavi.example.com", "")

	app, err := newApp(false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()

	if app.mode.IsDev() {
		t.Error("expected production mode for a public site")
	}
	if app.base != "https://visanavi.example.com/.netlify/functions" {
		t.Errorf("base = %q, want the serverless function root", app.base)
	}
}

func TestAsk_UsesConfiguredLang(t *testing.T) {
	var gotQuery string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ask" {
			gotQuery = r.URL.RawQuery
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"count":0,"results":[]}`))
	}))
	t.Cleanup(backend.Close)

	testEnv(t, "http://127.0.0.1:8080", backend.URL)
	t.Setenv("VNAVI_ASK_LANG", "EN")

	app, err := newApp(false)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()

	var out bytes.Buffer
	app.sink.W = &out

	if err := app.ctrl.Submit(context.Background(), "test", app.askLang("")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.Contains(gotQuery, "lang=EN") {
		t.Errorf("configured ask.lang not sent: query = %q", gotQuery)
	}

	// An explicit flag still wins over the configured value.
	if got := app.askLang("JP"); got != "JP" {
		t.Errorf("askLang(\"JP\") = %q, want JP", got)
	}
}

func TestAskFlow_DevEndToEnd(t *testing.T) {
	backend := newFixtureBackend(t)
	testEnv(t, "http://localhost:3000", backend.URL)

	app, err := newApp(true)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer app.Close()

	var out bytes.Buffer
	app.sink.W = &out

	ctx := context.Background()
	if !app.ctrl.WaitReady(ctx) {
		t.Fatal("expected backend to become ready")
	}
	if err := app.ctrl.Submit(ctx, "在留資格の更新に必要な書類は？", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rendered := out.String()
	if !strings.Contains(rendered, "<ol>") {
		t.Errorf("expected ranked-list markup, got %q", rendered)
	}

	interactions, err := app.hist.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(interactions) != 1 {
		t.Fatalf("expected 1 recorded interaction, got %d", len(interactions))
	}
	if interactions[0].Env != "development" {
		t.Errorf("recorded env = %q", interactions[0].Env)
	}
}
