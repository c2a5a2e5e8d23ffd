package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "site.url", typ: kString, env: "VNAVI_SITE_URL",
		apply:   func(cfg *Config, v any) { cfg.Site.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Site.URL },
	},
	{
		key: "api.dev_base_url", typ: kString, env: "VNAVI_API_DEV_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.API.DevBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.API.DevBaseURL },
	},
	{
		key: "payment.link", typ: kString, env: "VNAVI_PAYMENT_LINK",
		apply:   func(cfg *Config, v any) { cfg.Payment.Link = v.(string) },
		extract: func(cfg Config) any { return cfg.Payment.Link },
	},
	{
		key: "ask.lang", typ: kString, env: "VNAVI_ASK_LANG",
		apply:   func(cfg *Config, v any) { cfg.Ask.Lang = v.(string) },
		extract: func(cfg Config) any { return cfg.Ask.Lang },
	},
	{
		key: "ask.top_k", typ: kInt, env: "VNAVI_ASK_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Ask.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Ask.TopK },
	},
	{
		key: "member.cache_ttl", typ: kString, env: "VNAVI_MEMBER_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Member.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Member.CacheTTL },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VNAVI_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "server.stub_port", typ: kInt, env: "VNAVI_SERVER_STUB_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.StubPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.StubPort },
	},
	{
		key: "log.level", typ: kString, env: "VNAVI_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
