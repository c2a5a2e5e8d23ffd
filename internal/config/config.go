package config

import (
	"time"
)

type Config struct {
	Site    SiteConfig
	API     APIConfig
	Payment PaymentConfig
	Ask     AskConfig
	Member  MemberConfig
	Storage StorageConfig
	Server  ServerConfig
	Log     LogConfig
}

type SiteConfig struct {
	// URL is the page address the client acts on behalf of. Its hostname
	// decides whether the client runs in development or production mode.
	URL string
}

type APIConfig struct {
	DevBaseURL string
}

type PaymentConfig struct {
	Link string
}

type AskConfig struct {
	Lang string
	TopK int
}

type MemberConfig struct {
	// CacheTTL is a duration string, for example "6h".
	CacheTTL string
}

type StorageConfig struct {
	DataDir string
}

type ServerConfig struct {
	StubPort int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Site: SiteConfig{
			URL: "http://localhost",
		},
		API: APIConfig{
			DevBaseURL: "http://127.0.0.1:8000",
		},
		Payment: PaymentConfig{
			Link: "https://buy.stripe.com/bJe7sM4GO1HWgic4CS3VC02",
		},
		Ask: AskConfig{
			Lang: "JP",
			TopK: 3,
		},
		Member: MemberConfig{
			CacheTTL: "6h",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			StubPort: 8000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and then
// environment variables.
//
// On macOS the backend is UserDefaults (domain: com.vnavi.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/vnavi/config.json.
//
// Environment variables (VNAVI_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// MemberCacheTTL parses the configured cache lifetime, falling back to the
// default when the value does not parse.
func (c Config) MemberCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Member.CacheTTL)
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}
