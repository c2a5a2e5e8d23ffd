package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/visanavi/vnavi/internal/askapi"
	"github.com/visanavi/vnavi/internal/config"
	"github.com/visanavi/vnavi/internal/controller"
	"github.com/visanavi/vnavi/internal/env"
	"github.com/visanavi/vnavi/internal/history"
	"github.com/visanavi/vnavi/internal/member"
	"github.com/visanavi/vnavi/internal/payment"
	"github.com/visanavi/vnavi/internal/render"
	"github.com/visanavi/vnavi/internal/session"
)

// app wires the client components for one command invocation.
type app struct {
	cfg     config.Config
	mode    env.Mode
	base    string
	store   *session.Store
	client  *askapi.Client
	gate    *member.Gate
	payment *payment.Handler
	sink    *render.WriterSink
	ctrl    *controller.Controller
	hist    *history.Store
}

// newApp loads config and builds the component graph. withHistory opens the
// interaction log; commands that never submit a question skip it.
func newApp(withHistory bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	initLogging(cfg.Log.Level)

	siteURL, err := url.Parse(cfg.Site.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing site.url: %w", err)
	}
	mode := env.Resolve(siteURL.Hostname())
	base := env.BaseURL(mode, cfg.API.DevBaseURL, cfg.Site.URL)

	store, err := session.New(cfg.Storage.DataDir, cfg.MemberCacheTTL())
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	client := askapi.New(mode, base, store)
	client.SetTopK(cfg.Ask.TopK)

	sink := &render.WriterSink{W: os.Stdout}
	gate := member.New(mode, client, store, stdinPrompter{}, sink, cfg.Payment.Link)
	pay := payment.New(mode, client, store, sink)

	var hist *history.Store
	if withHistory {
		hist, err = history.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
	}

	return &app{
		cfg:     cfg,
		mode:    mode,
		base:    base,
		store:   store,
		client:  client,
		gate:    gate,
		payment: pay,
		sink:    sink,
		ctrl:    controller.New(gate, client, sink, hist),
		hist:    hist,
	}, nil
}

// askLang resolves the answer language: the explicit flag wins, then the
// configured ask.lang. The controller falls back to "JP" when both are empty.
func (a *app) askLang(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Ask.Lang
}

func (a *app) Close() {
	if a.hist != nil {
		if err := a.hist.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing history: %v\n", err)
		}
	}
}

// stdinPrompter asks for an email address on the terminal.
type stdinPrompter struct{}

func (stdinPrompter) AskEmail() (string, error) {
	printStep("メールアドレスを入力してください:")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
