// Package session persists the user-visible client state: cookies, the saved
// email, and the membership-verification cache. It is the Go rendition of the
// browser's document.cookie / localStorage pair, backed by small JSON files in
// the data directory.
package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	cookieUserEmail = "user_email"
	cookiePaid      = "paid"

	keyUserEmail   = "user_email"
	keyMemberCache = "member_cache"

	cookiesFile = "cookies.json"
	localFile   = "local.json"

	// DefaultMemberCacheTTL bounds how long a membership verdict is trusted.
	DefaultMemberCacheTTL = 6 * time.Hour
)

// MemberCache is the single cached membership verdict. Exp is epoch
// milliseconds; entries past it are stale and must be replaced.
type MemberCache struct {
	Email  string `json:"email"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
	Exp    int64  `json:"exp"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (c *MemberCache) Expired(now time.Time) bool {
	return now.UnixMilli() > c.Exp
}

// Store reads and writes client state under dir. All read paths are tolerant:
// missing or corrupt files behave as empty state and never return errors.
type Store struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// New opens a store rooted at dir, creating it if needed. A zero ttl selects
// DefaultMemberCacheTTL.
func New(dir string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultMemberCacheTTL
	}
	return &Store{dir: dir, ttl: ttl, now: time.Now}, nil
}

// --- cookies ---

type cookie struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"` // URL-encoded
	Path     string     `json:"path"`
	SameSite string     `json:"same_site"`
	Expires  *time.Time `json:"expires,omitempty"`
}

func (s *Store) loadCookies() []cookie {
	data, err := os.ReadFile(filepath.Join(s.dir, cookiesFile))
	if err != nil {
		return nil
	}
	var cs []cookie
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil
	}
	return cs
}

func (s *Store) saveCookies(cs []cookie) error {
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, cookiesFile), data, 0o600)
}

// CookieHeader renders the live cookies as a `; `-separated header string,
// suitable for the Cookie header of credentialed API requests.
func (s *Store) CookieHeader() string {
	now := s.now()
	var parts []string
	for _, c := range s.loadCookies() {
		if c.Expires != nil && !now.Before(*c.Expires) {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// GetCookie parses the cookie string and returns the URL-decoded value for
// name. Absent, expired, or undecodable cookies yield "".
func (s *Store) GetCookie(name string) string {
	for _, part := range strings.Split(s.CookieHeader(), "; ") {
		if !strings.HasPrefix(part, name+"=") {
			continue
		}
		v, err := url.QueryUnescape(strings.TrimPrefix(part, name+"="))
		if err != nil {
			return ""
		}
		return v
	}
	return ""
}

// SetCookie writes a cookie scoped to the whole site with SameSite=Lax. The
// value is URL-encoded. A zero maxAge records no expiry (session cookie).
func (s *Store) SetCookie(name, value string, maxAge time.Duration) error {
	c := cookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     "/",
		SameSite: "Lax",
	}
	if maxAge > 0 {
		exp := s.now().Add(maxAge)
		c.Expires = &exp
	}
	return s.upsertCookie(c)
}

func (s *Store) upsertCookie(c cookie) error {
	cs := s.loadCookies()
	replaced := false
	for i := range cs {
		if cs[i].Name == c.Name {
			cs[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		cs = append(cs, c)
	}
	return s.saveCookies(cs)
}

// StoreResponseCookies records Set-Cookie values returned by credentialed API
// responses, mirroring the browser's automatic cookie handling.
func (s *Store) StoreResponseCookies(cs []*http.Cookie) {
	for _, rc := range cs {
		c := cookie{
			Name:     rc.Name,
			Value:    rc.Value, // already in wire encoding
			Path:     rc.Path,
			SameSite: "Lax",
		}
		if c.Path == "" {
			c.Path = "/"
		}
		if rc.MaxAge > 0 {
			exp := s.now().Add(time.Duration(rc.MaxAge) * time.Second)
			c.Expires = &exp
		} else if !rc.Expires.IsZero() {
			exp := rc.Expires
			c.Expires = &exp
		}
		if rc.MaxAge < 0 {
			exp := s.now().Add(-time.Second)
			c.Expires = &exp
		}
		// Best effort; a failed write just means the cookie is not remembered.
		_ = s.upsertCookie(c)
	}
}

func (s *Store) expireCookie(name string) error {
	exp := s.now().Add(-time.Second)
	return s.upsertCookie(cookie{Name: name, Path: "/", SameSite: "Lax", Expires: &exp})
}

// --- local storage ---

func (s *Store) localLoad() map[string]string {
	data, err := os.ReadFile(filepath.Join(s.dir, localFile))
	if err != nil {
		return map[string]string{}
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]string{}
	}
	return m
}

func (s *Store) localSave(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, localFile), data, 0o600)
}

func (s *Store) getItem(key string) string {
	return s.localLoad()[key]
}

func (s *Store) setItem(key, value string) error {
	m := s.localLoad()
	m[key] = value
	return s.localSave(m)
}

func (s *Store) removeItem(key string) error {
	m := s.localLoad()
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.localSave(m)
}

// --- email ---

// SavedEmail resolves the session email with precedence cookie → local
// storage → the `email` query parameter of pageURL (which may be nil).
func (s *Store) SavedEmail(pageURL *url.URL) string {
	if v := s.GetCookie(cookieUserEmail); v != "" {
		return v
	}
	if v := s.getItem(keyUserEmail); v != "" {
		return v
	}
	if pageURL != nil {
		return pageURL.Query().Get("email")
	}
	return ""
}

// SaveEmail persists a non-empty email to local storage. Empty input is a
// no-op.
func (s *Store) SaveEmail(email string) error {
	if email == "" {
		return nil
	}
	return s.setItem(keyUserEmail, email)
}

// --- member cache ---

// ReadMemberCache returns the cached membership verdict, or nil when the
// entry is missing or the stored blob does not parse.
func (s *Store) ReadMemberCache() *MemberCache {
	raw := s.getItem(keyMemberCache)
	if raw == "" {
		return nil
	}
	var c MemberCache
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil
	}
	return &c
}

// WriteMemberCache overwrites the single cache entry with a fresh expiry.
func (s *Store) WriteMemberCache(email string, ok bool, reason string) error {
	c := MemberCache{
		Email:  email,
		OK:     ok,
		Reason: reason,
		Exp:    s.now().Add(s.ttl).UnixMilli(),
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.setItem(keyMemberCache, string(data))
}

// Reset is the debug action: it removes the saved email and member cache from
// local storage and expires both client cookies.
func (s *Store) Reset() error {
	if err := s.removeItem(keyUserEmail); err != nil {
		return err
	}
	if err := s.removeItem(keyMemberCache); err != nil {
		return err
	}
	if err := s.expireCookie(cookieUserEmail); err != nil {
		return err
	}
	return s.expireCookie(cookiePaid)
}

// DropParams returns u with the named query parameters removed. changed is
// false when none of the keys were present, in which case the returned URL is
// u itself, untouched.
func DropParams(u *url.URL, keys ...string) (clean *url.URL, changed bool) {
	q := u.Query()
	for _, k := range keys {
		if q.Has(k) {
			q.Del(k)
			changed = true
		}
	}
	if !changed {
		return u, false
	}
	out := *u
	out.RawQuery = q.Encode()
	return &out, true
}
