// Package env resolves the deployment environment from the site host name.
package env

import "strings"

// Mode identifies which backend the client talks to. It is resolved once at
// startup and threaded through as an immutable value.
type Mode int

const (
	// Development targets the local query service over plain GET requests.
	Development Mode = iota
	// Production targets the serverless function set.
	Production
)

func (m Mode) String() string {
	if m == Development {
		return "development"
	}
	return "production"
}

// IsDev reports whether the mode is Development.
func (m Mode) IsDev() bool { return m == Development }

// Resolve maps a page host name to a Mode. Only the loopback names used during
// local development count as Development; everything else is Production.
func Resolve(host string) Mode {
	switch host {
	case "127.0.0.1", "localhost":
		return Development
	}
	return Production
}

// FunctionsPrefix is the path under the production site origin where the
// serverless functions are exposed.
const FunctionsPrefix = "/.netlify/functions"

// BaseURL derives the API base for a mode. devBase is the local query service
// origin; siteURL is the production site origin the functions hang off of.
func BaseURL(m Mode, devBase, siteURL string) string {
	if m == Development {
		return strings.TrimRight(devBase, "/")
	}
	return strings.TrimRight(siteURL, "/") + FunctionsPrefix
}
