// Package controller runs the submit pipeline: membership gate, dispatch,
// render. It owns the single in-flight guard.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/visanavi/vnavi/internal/askapi"
	"github.com/visanavi/vnavi/internal/history"
	"github.com/visanavi/vnavi/internal/member"
	"github.com/visanavi/vnavi/internal/render"
)

// DefaultLang is used when the caller supplies no language.
const DefaultLang = "JP"

const (
	readyInterval = 200 * time.Millisecond
	readyDeadline = 10 * time.Second
)

// ErrInFlight is returned when a submission arrives while another is still
// running. Callers drop it silently; there is no queue.
var ErrInFlight = errors.New("submission already in flight")

// Controller wires a question through the gate, the dispatcher, and the
// renderer. The in-flight guard is advisory: it rejects overlapping
// submissions rather than serializing them.
type Controller struct {
	gate *member.Gate
	api  *askapi.Client
	sink render.Sink
	hist *history.Store // optional

	inFlight atomic.Bool

	// overridable in tests
	readyInterval time.Duration
	readyDeadline time.Duration
}

// New builds a controller. hist may be nil to disable interaction logging.
func New(gate *member.Gate, api *askapi.Client, sink render.Sink, hist *history.Store) *Controller {
	return &Controller{
		gate:          gate,
		api:           api,
		sink:          sink,
		hist:          hist,
		readyInterval: readyInterval,
		readyDeadline: readyDeadline,
	}
}

// Submit runs one question through the pipeline. Every outcome (gate
// refusal, validation failure, dispatch error, success) is rendered into the
// sink; only an overlapping submission is reported as ErrInFlight. The guard
// is released on all paths.
func (c *Controller) Submit(ctx context.Context, question, lang string) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer c.inFlight.Store(false)

	ok, email := c.gate.EnsureActive(ctx)
	if !ok {
		// The gate has already rendered its explanation.
		return nil
	}

	question = strings.TrimSpace(question)
	if lang == "" {
		lang = DefaultLang
	}
	if question == "" {
		c.sink.SetAnswer("質問を入力してください。")
		return nil
	}

	c.sink.SetAnswer("送信中…")
	reply, err := c.api.Ask(ctx, question, lang, email)
	if err != nil {
		slog.Debug("ask dispatch failed", "error", err)
		c.sink.SetAnswer("通信に失敗しました。回線状況と API の起動状態をご確認ください。")
		c.record(question, lang, "error", "")
		return nil
	}

	html := render.Reply(reply)
	c.sink.SetAnswer(html)
	c.record(question, lang, "ok", html)
	return nil
}

func (c *Controller) record(question, lang, status, html string) {
	if c.hist == nil {
		return
	}
	_, err := c.hist.Record(history.Interaction{
		Env:      c.api.Mode().String(),
		Question: question,
		Lang:     lang,
		Status:   status,
		HTML:     html,
	})
	if err != nil {
		slog.Warn("recording interaction", "error", err)
	}
}

// WaitReady polls the backend health endpoint until it answers, the deadline
// passes, or ctx is cancelled. It gives up silently: false means the backend
// never became reachable.
func (c *Controller) WaitReady(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.readyDeadline)
	defer cancel()

	ticker := time.NewTicker(c.readyInterval)
	defer ticker.Stop()

	for {
		if ok, err := c.api.Ping(ctx); err == nil && ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
