// Package member gates the Q&A feature behind payment membership.
package member

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/visanavi/vnavi/internal/askapi"
	"github.com/visanavi/vnavi/internal/env"
	"github.com/visanavi/vnavi/internal/render"
	"github.com/visanavi/vnavi/internal/session"
)

// devEmail is the placeholder identity used when the gate is bypassed in
// development.
const devEmail = "dev@example.com"

// Prompter supplies an email when none is saved. Implementations may be
// interactive; a failed or abandoned prompt returns an empty string.
type Prompter interface {
	AskEmail() (string, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func() (string, error)

func (f PrompterFunc) AskEmail() (string, error) { return f() }

// Gate decides whether the current user may use the Q&A feature. Failure
// paths render an explanation into the sink and report failure without error.
type Gate struct {
	mode        env.Mode
	api         *askapi.Client
	store       *session.Store
	prompt      Prompter
	sink        render.Sink
	paymentLink string
}

// New builds a gate. prompt may be nil, in which case a missing email is not
// recoverable interactively.
func New(mode env.Mode, api *askapi.Client, store *session.Store, prompt Prompter, sink render.Sink, paymentLink string) *Gate {
	return &Gate{
		mode:        mode,
		api:         api,
		store:       store,
		prompt:      prompt,
		sink:        sink,
		paymentLink: paymentLink,
	}
}

// CheckMember verifies membership for email. Development always passes with
// no network call. In production the verdict is written to the member cache
// on every response; a parse failure is a negative verdict, not an error.
func (g *Gate) CheckMember(ctx context.Context, email string) (askapi.MemberStatus, error) {
	if g.mode.IsDev() {
		return askapi.MemberStatus{OK: true, Reason: "dev"}, nil
	}
	st, err := g.api.CheckMember(ctx, email)
	if err != nil {
		return askapi.MemberStatus{}, err
	}
	if err := g.store.WriteMemberCache(email, st.OK, st.Reason); err != nil {
		slog.Warn("writing member cache", "error", err)
	}
	return st, nil
}

// EnsureActive resolves the user's email and confirms active membership.
// When it returns ok=false an explanation has already been rendered.
func (g *Gate) EnsureActive(ctx context.Context) (ok bool, email string) {
	if g.mode.IsDev() {
		return true, devEmail
	}

	// Cookie takes priority over local storage and is mirrored into it.
	if cookieMail := g.store.GetCookie("user_email"); cookieMail != "" {
		if err := g.store.SaveEmail(cookieMail); err != nil {
			slog.Warn("persisting cookie email", "error", err)
		}
	}

	email = g.store.SavedEmail(nil)
	if email == "" && g.prompt != nil {
		supplied, err := g.prompt.AskEmail()
		if err != nil {
			slog.Debug("email prompt failed", "error", err)
		}
		email = supplied
	}
	if email == "" {
		g.sink.SetAnswer(fmt.Sprintf(`メールの入力が必要です。<a href="%s" target="_blank" rel="noopener">こちら</a>からご登録ください。`, g.paymentLink))
		return false, ""
	}
	if err := g.store.SaveEmail(email); err != nil {
		slog.Warn("persisting email", "error", err)
	}

	st, err := g.CheckMember(ctx, email)
	if err != nil {
		g.sink.SetAnswer("会員確認でエラーが発生しました。時間をおいて再試しください。")
		return false, ""
	}
	if st.OK {
		return true, email
	}
	if st.Reason == "inactive" {
		g.sink.SetAnswer("ご契約の状態がアクティブではありません。<br>" +
			fmt.Sprintf(`再登録は <a href="%s" target="_blank" rel="noopener">こちら</a> からお願いします。`, g.paymentLink))
	} else {
		g.sink.SetAnswer("この機能は有料会員向けです。<br>" +
			fmt.Sprintf(`ご登録は <a href="%s" target="_blank" rel="noopener">こちら</a> からお願いします。`, g.paymentLink))
	}
	return false, ""
}
