// Package askapi is the HTTP client for the two Q&A backend shapes: the local
// development query service (plain GET) and the production serverless
// functions (credentialed POST/GET).
package askapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/visanavi/vnavi/internal/env"
)

// TopK is the default result count requested from the development backend.
const TopK = 3

// Result is one ranked hit from the development backend.
type Result struct {
	Rank       int      `json:"rank"`
	Score      *float64 `json:"score"`
	Title      string   `json:"title"`
	SourcePath string   `json:"source_path"`
	SourceURL  string   `json:"source_url"`
	Text       string   `json:"text"`
}

// ResultList is the development /ask response shape.
type ResultList struct {
	OK      bool     `json:"ok"`
	Count   int      `json:"count"`
	Results []Result `json:"results"`
}

// Source is a reference attached to a production answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Answer is the production /ask response shape.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Reply is the tagged union of the two response shapes. Exactly one field is
// set, decided by the client's mode, never by sniffing the payload.
type Reply struct {
	Results *ResultList
	Answer  *Answer
}

// MemberStatus is the verdict of a remote membership check.
type MemberStatus struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// VerifyResult is the body of a payment-session verification response.
type VerifyResult struct {
	OK            bool   `json:"ok"`
	Email         string `json:"email"`
	CustomerEmail string `json:"customer_email"`
}

// CookieJar supplies and absorbs cookies for credentialed production
// requests. *session.Store satisfies it.
type CookieJar interface {
	CookieHeader() string
	StoreResponseCookies([]*http.Cookie)
}

// Client dispatches requests to the environment-appropriate backend.
type Client struct {
	mode    env.Mode
	baseURL string
	jar     CookieJar
	topK    int
	http    *http.Client
}

// New builds a client for the given mode and API base. jar may be nil in
// development, where no credentials are attached.
func New(mode env.Mode, baseURL string, jar CookieJar) *Client {
	return &Client{
		mode:    mode,
		baseURL: baseURL,
		jar:     jar,
		topK:    TopK,
		// No request timeout: answers can be slow and there is no retry
		// or cancellation layer above this. Callers cancel via ctx.
		http: &http.Client{},
	}
}

// SetTopK overrides the development result cutoff. Zero or negative values
// keep the default.
func (c *Client) SetTopK(k int) {
	if k > 0 {
		c.topK = k
	}
}

// Mode returns the environment mode the client was built for.
func (c *Client) Mode() env.Mode { return c.mode }

func (c *Client) get(ctx context.Context, rawURL string, credentials bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.send(req, credentials)
}

func (c *Client) postJSON(ctx context.Context, rawURL string, body any, credentials bool) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, credentials)
}

func (c *Client) send(req *http.Request, credentials bool) (*http.Response, error) {
	if credentials && c.jar != nil {
		if h := c.jar.CookieHeader(); h != "" {
			req.Header.Set("Cookie", h)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if credentials && c.jar != nil {
		c.jar.StoreResponseCookies(resp.Cookies())
	}
	return resp, nil
}

// readBody drains the response body as text so that a non-JSON payload can
// still surface as a readable error.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// decodeStrict unmarshals data into v. On failure the error carries the raw
// response text, or a generic message when the body is empty.
func decodeStrict(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		if len(data) == 0 {
			return errors.New("invalid json")
		}
		return errors.New(string(data))
	}
	return nil
}

// Ask sends the question to the backend for this mode and returns the reply
// in the corresponding shape.
func (c *Client) Ask(ctx context.Context, question, lang, email string) (*Reply, error) {
	if c.mode.IsDev() {
		q := url.Values{}
		q.Set("q", question)
		q.Set("k", strconv.Itoa(c.topK))
		q.Set("lang", lang)
		resp, err := c.get(ctx, c.baseURL+"/ask?"+q.Encode(), false)
		if err != nil {
			return nil, err
		}
		body, err := readBody(resp)
		if err != nil {
			return nil, err
		}
		var list ResultList
		if err := decodeStrict(body, &list); err != nil {
			return nil, err
		}
		return &Reply{Results: &list}, nil
	}

	payload := struct {
		Question string `json:"question"`
		Lang     string `json:"lang"`
		Email    string `json:"email"`
	}{question, lang, email}
	resp, err := c.postJSON(ctx, c.baseURL+"/ask", payload, true)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var ans Answer
	if err := decodeStrict(body, &ans); err != nil {
		return nil, err
	}
	return &Reply{Answer: &ans}, nil
}

// Ping probes the backend health endpoint.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	resp, err := c.get(ctx, c.baseURL+"/ping", !c.mode.IsDev())
	if err != nil {
		return false, err
	}
	body, err := readBody(resp)
	if err != nil {
		return false, err
	}
	var out struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

// CheckMember looks up membership by email. A body that fails to parse is a
// negative verdict, not an error; only transport failures return one.
func (c *Client) CheckMember(ctx context.Context, email string) (MemberStatus, error) {
	resp, err := c.get(ctx, c.baseURL+"/check-member?email="+url.QueryEscape(email), true)
	if err != nil {
		return MemberStatus{}, err
	}
	body, err := readBody(resp)
	if err != nil {
		return MemberStatus{}, err
	}
	var st MemberStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return MemberStatus{OK: false, Reason: "error"}, nil
	}
	return st, nil
}

// VerifyStripe verifies a checkout session. httpOK reflects the transport
// status line; a body that fails to parse is treated as an empty object.
func (c *Client) VerifyStripe(ctx context.Context, sessionID, emailHint string) (result VerifyResult, httpOK bool, err error) {
	verifyURL := c.baseURL + "/stripe-verify?session_id=" + url.QueryEscape(sessionID)
	if emailHint != "" {
		verifyURL += "&email=" + url.QueryEscape(emailHint)
	}
	resp, err := c.get(ctx, verifyURL, true)
	if err != nil {
		return VerifyResult{}, false, err
	}
	body, err := readBody(resp)
	if err != nil {
		return VerifyResult{}, false, err
	}
	httpOK = resp.StatusCode >= 200 && resp.StatusCode < 300
	_ = json.Unmarshal(body, &result)
	return result, httpOK, nil
}
