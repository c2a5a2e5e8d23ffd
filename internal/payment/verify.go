// Package payment handles the return leg of the hosted checkout flow: a user
// comes back from the payment provider with a session_id in the URL, and the
// client verifies it remotely before unlocking the Q&A feature.
package payment

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/visanavi/vnavi/internal/askapi"
	"github.com/visanavi/vnavi/internal/env"
	"github.com/visanavi/vnavi/internal/render"
	"github.com/visanavi/vnavi/internal/session"
)

// Handler verifies payment-return URLs and persists the resulting membership
// state. It runs once, before the submit pipeline starts.
type Handler struct {
	mode  env.Mode
	api   *askapi.Client
	store *session.Store
	sink  render.Sink
}

func New(mode env.Mode, api *askapi.Client, store *session.Store, sink render.Sink) *Handler {
	return &Handler{mode: mode, api: api, store: store, sink: sink}
}

// VerifyOnReturn inspects pageURL for a payment session identifier and, when
// present, verifies it remotely, persists the email and a positive member
// cache entry, and returns the URL with session_id and email stripped. In
// development, or when no session_id is present, it is a no-op and returns
// pageURL unchanged. Every failure is rendered into the sink; none escape.
func (h *Handler) VerifyOnReturn(ctx context.Context, pageURL *url.URL) *url.URL {
	if h.mode.IsDev() || pageURL == nil {
		return pageURL
	}
	q := pageURL.Query()
	sessionID := q.Get("session_id")
	emailHint := q.Get("email")
	if sessionID == "" {
		return pageURL
	}

	h.sink.SetAnswer("決済を確認中です…")

	result, httpOK, err := h.api.VerifyStripe(ctx, sessionID, emailHint)
	if err != nil {
		slog.Debug("payment verification", "error", err)
		h.sink.SetAnswer("決済確認でエラーが発生しました。しばらくしてから再試しください。")
		return pageURL
	}

	if !httpOK || !result.OK {
		h.sink.SetAnswer("決済の確認に失敗しました。ページを更新して再試行してください。")
		return pageURL
	}

	email := result.Email
	if email == "" {
		email = result.CustomerEmail
	}
	if email == "" {
		email = emailHint
	}
	if email == "" {
		email = h.store.SavedEmail(nil)
	}
	if email != "" {
		if err := h.store.SaveEmail(email); err != nil {
			slog.Warn("persisting verified email", "error", err)
		}
		if err := h.store.WriteMemberCache(email, true, "paid"); err != nil {
			slog.Warn("writing member cache", "error", err)
		}
	}

	clean, _ := session.DropParams(pageURL, "session_id", "email")
	h.sink.SetAnswer("お支払いありがとうございます。会員状態を更新しました。<br>フォームからご質問ください。")
	return clean
}
