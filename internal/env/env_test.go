package env

import "testing"

func TestResolve(t *testing.T) {
	cases := []struct {
		host string
		want Mode
	}{
		{"127.0.0.1", Development},
		{"localhost", Development},
		{"visanavi.example.com", Production},
		{"www.localhost", Production},
		{"127.0.0.2", Production},
		{"", Production},
	}
	for _, c := range cases {
		if got := Resolve(c.host); got != c.want {
			t.Errorf("Resolve(%q) = %v, want %v", c.host, got, c.want)
		}
	}
}

func TestBaseURL(t *testing.T) {
	if got := BaseURL(Development, "http://127.0.0.1:8000/", "https://example.com"); got != "http://127.0.0.1:8000" {
		t.Errorf("dev base = %q", got)
	}
	if got := BaseURL(Production, "http://127.0.0.1:8000", "https://example.com/"); got != "https://example.com/.netlify/functions" {
		t.Errorf("prod base = %q", got)
	}
}
