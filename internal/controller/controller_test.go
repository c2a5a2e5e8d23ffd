package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/visanavi/vnavi/internal/askapi"
	"github.com/visanavi/vnavi/internal/env"
	"github.com/visanavi/vnavi/internal/history"
	"github.com/visanavi/vnavi/internal/member"
	"github.com/visanavi/vnavi/internal/render"
	"github.com/visanavi/vnavi/internal/session"
)

var ctx = context.Background()

func newDevController(t *testing.T, handler http.HandlerFunc, hist *history.Store) (*Controller, *render.Capture, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sink := &render.Capture{}
	api := askapi.New(env.Development, srv.URL, nil)
	gate := member.New(env.Development, api, nil, nil, sink, "https://pay.example.com")
	return New(gate, api, sink, hist), sink, srv
}

func TestSubmit_DevelopmentDefaultsLangAndTopK(t *testing.T) {
	var query string
	c, sink, _ := newDevController(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{"ok":true,"count":1,"results":[{"rank":1,"title":"doc"}]}`))
	}, nil)

	if err := c.Submit(ctx, "test", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if query != "k=3&lang=JP&q=test" {
		t.Errorf("query = %q, want k=3&lang=JP&q=test", query)
	}
	if !strings.HasPrefix(sink.Last(), "<ol>") {
		t.Errorf("rendered = %q", sink.Last())
	}
}

func TestSubmit_EmptyQuestion(t *testing.T) {
	c, sink, _ := newDevController(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty question")
	}, nil)

	if err := c.Submit(ctx, "   ", "JP"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sink.Last() != "質問を入力してください。" {
		t.Errorf("rendered = %q", sink.Last())
	}
}

func TestSubmit_DispatchErrorRendersConnectivityMessage(t *testing.T) {
	sink := &render.Capture{}
	api := askapi.New(env.Development, "http://127.0.0.1:1", nil)
	gate := member.New(env.Development, api, nil, nil, sink, "https://pay.example.com")
	c := New(gate, api, sink, nil)

	if err := c.Submit(ctx, "test", "JP"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.Contains(sink.Last(), "通信に失敗しました") {
		t.Errorf("rendered = %q", sink.Last())
	}
}

func TestSubmit_InFlightGuard(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	c, _, _ := newDevController(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.Write([]byte(`{"results":[]}`))
	}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Submit(ctx, "slow question", "JP")
	}()

	<-started
	if err := c.Submit(ctx, "second question", "JP"); err != ErrInFlight {
		t.Errorf("overlapping Submit = %v, want ErrInFlight", err)
	}

	close(release)
	wg.Wait()

	// Guard released after completion.
	if err := c.Submit(ctx, "third question", "JP"); err != nil {
		t.Errorf("Submit after completion = %v", err)
	}
}

func TestSubmit_GuardReleasedAfterGateFailure(t *testing.T) {
	store, err := session.New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"reason":"inactive"}`))
	}))
	t.Cleanup(srv.Close)

	sink := &render.Capture{}
	api := askapi.New(env.Production, srv.URL, store)
	gate := member.New(env.Production, api, store, member.PrompterFunc(func() (string, error) {
		return "foo@bar.com", nil
	}), sink, "https://pay.example.com")
	c := New(gate, api, sink, nil)

	if err := c.Submit(ctx, "test", "JP"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.Contains(sink.Last(), "アクティブではありません") {
		t.Errorf("inactive variant missing: %q", sink.Last())
	}
	// Guard must be free again.
	if err := c.Submit(ctx, "test", "JP"); err != nil {
		t.Errorf("Submit after gate failure = %v", err)
	}
}

func TestSubmit_RecordsHistory(t *testing.T) {
	hist, err := history.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hist.Close() })

	c, _, _ := newDevController(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"rank":1,"title":"doc"}]}`))
	}, hist)

	if err := c.Submit(ctx, "recorded?", ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	all, err := hist.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("history entries = %d, want 1", len(all))
	}
	ix := all[0]
	if ix.Question != "recorded?" || ix.Lang != "JP" || ix.Status != "ok" || ix.Env != "development" {
		t.Errorf("interaction = %+v", ix)
	}
}

func TestWaitReady_BecomesReady(t *testing.T) {
	var mu sync.Mutex
	healthy := false
	c, _, _ := newDevController(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}, nil)
	c.readyInterval = 10 * time.Millisecond
	c.readyDeadline = time.Second

	go func() {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		healthy = true
		mu.Unlock()
	}()

	if !c.WaitReady(ctx) {
		t.Error("WaitReady = false, want true once the backend answers")
	}
}

func TestWaitReady_GivesUpSilently(t *testing.T) {
	sink := &render.Capture{}
	api := askapi.New(env.Development, "http://127.0.0.1:1", nil)
	gate := member.New(env.Development, api, nil, nil, sink, "")
	c := New(gate, api, sink, nil)
	c.readyInterval = 10 * time.Millisecond
	c.readyDeadline = 50 * time.Millisecond

	if c.WaitReady(ctx) {
		t.Error("WaitReady = true for unreachable backend")
	}
	if sink.Last() != "" {
		t.Errorf("WaitReady rendered %q, want silence", sink.Last())
	}
}
