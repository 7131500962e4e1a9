package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 3000 || !cfg.IsDevelopment() {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Crawler.Provider != ProviderAPI || cfg.CrawlerWaitFor() != 3*time.Second || cfg.Crawler.AllowPrivateNetworks {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.LLM.Temperature != 0.3 || cfg.LLM.MaxTokens != 2000 || cfg.LLMTimeout() != time.Minute {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.DB.MaxConns != 10 || cfg.DB.DSN != "" {
		t.Fatalf("unexpected db defaults: %+v", cfg.DB)
	}
	if cfg.RateLimit.Requests != 10 || cfg.RateLimitWindow() != 15*time.Minute {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.RequestTimeout() != 120*time.Second {
		t.Fatalf("expected 120s request timeout, got %v", cfg.RequestTimeout())
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  environment: production
  request_timeout_seconds: 90
  trusted_proxies:
    - 10.0.0.0/8
    - 192.0.2.10
crawler:
  provider: direct
  timeout_seconds: 20
  user_agent: test-agent
  allow_private_networks: true
llm:
  api_key: file-key
  model: custom-model
  temperature: 0.5
db:
  dsn: postgres://localhost/leads
  max_conns: 4
admin:
  token: s3cret
rate_limit:
  requests: 3
  window_seconds: 60
pubsub:
  project_id: proj
  topic_name: leads
logging:
  development: false
  level: warn
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.IsDevelopment() {
		t.Fatalf("expected production on 9090, got %+v", cfg.Server)
	}
	if got := cfg.TrustedProxyPrefixes(); len(got) != 2 || got[1].String() != "192.0.2.10/32" {
		t.Fatalf("expected two trusted proxy ranges, got %v", got)
	}
	if cfg.Crawler.Provider != ProviderDirect || cfg.CrawlerTimeout() != 20*time.Second || !cfg.Crawler.AllowPrivateNetworks {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.LLM.APIKey != "file-key" || cfg.LLM.Model != "custom-model" || cfg.LLM.Temperature != 0.5 {
		t.Fatalf("expected llm overrides to apply: %+v", cfg.LLM)
	}
	if cfg.DB.DSN != "postgres://localhost/leads" || cfg.DB.MaxConns != 4 {
		t.Fatalf("expected db overrides to apply: %+v", cfg.DB)
	}
	if cfg.Admin.Token != "s3cret" || cfg.RateLimit.Requests != 3 {
		t.Fatalf("expected admin/rate limit overrides to apply: %+v", cfg)
	}
	if cfg.PubSub.TopicName != "leads" || cfg.Logging.Level != "warn" || cfg.Logging.Development {
		t.Fatalf("expected pubsub/logging overrides to apply: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ANALYZER_LLM_API_KEY", "env-key")
	t.Setenv("ANALYZER_ADMIN_TOKEN", "env-token")
	t.Setenv("ANALYZER_CRAWLER_PROVIDER", "direct")
	t.Setenv("PORT", "8181")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "env-key" || cfg.Admin.Token != "env-token" {
		t.Fatalf("expected env secrets, got %+v", cfg)
	}
	if cfg.Crawler.Provider != ProviderDirect {
		t.Fatalf("expected direct provider, got %q", cfg.Crawler.Provider)
	}
	if cfg.Server.Port != 8181 {
		t.Fatalf("expected PORT to win, got %d", cfg.Server.Port)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "eighty")
	if _, err := Load(""); err == nil {
		t.Fatal("expected PORT parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080, RequestTimeoutSeconds: 120},
		Crawler:   CrawlerConfig{Provider: ProviderAPI, BaseURL: "https://crawl.test", TimeoutSeconds: 30},
		LLM:       LLMConfig{TimeoutSeconds: 60, MaxTokens: 2000, Temperature: 0.3},
		DB:        DBConfig{MaxConns: 10},
		RateLimit: RateLimitConfig{Requests: 10, WindowSeconds: 900},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }, want: "server.port"},
		{name: "trusted proxy", mutate: func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/33"} }, want: "server.trusted_proxies"},
		{name: "request timeout", mutate: func(c *Config) { c.Server.RequestTimeoutSeconds = 0 }, want: "request_timeout"},
		{name: "unknown provider", mutate: func(c *Config) { c.Crawler.Provider = "browser" }, want: "crawler.provider"},
		{name: "api provider without url", mutate: func(c *Config) { c.Crawler.BaseURL = "" }, want: "crawler.base_url"},
		{name: "crawler timeout", mutate: func(c *Config) { c.Crawler.TimeoutSeconds = 0 }, want: "crawler.timeout_seconds"},
		{name: "negative wait", mutate: func(c *Config) { c.Crawler.WaitForMs = -1 }, want: "crawler.wait_for_ms"},
		{name: "llm timeout", mutate: func(c *Config) { c.LLM.TimeoutSeconds = 0 }, want: "llm.timeout_seconds"},
		{name: "llm tokens", mutate: func(c *Config) { c.LLM.MaxTokens = 0 }, want: "llm.max_tokens"},
		{name: "llm temperature", mutate: func(c *Config) { c.LLM.Temperature = 1.5 }, want: "llm.temperature"},
		{name: "db conns", mutate: func(c *Config) { c.DB.MaxConns = 0 }, want: "db.max_conns"},
		{name: "rate limit", mutate: func(c *Config) { c.RateLimit.WindowSeconds = 0 }, want: "rate_limit"},
		{name: "pubsub half set", mutate: func(c *Config) { c.PubSub.TopicName = "leads" }, want: "pubsub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParsePrefixes(t *testing.T) {
	t.Parallel()

	got, err := ParsePrefixes([]string{" 10.1.2.3/8 ", "", "::ffff:192.0.2.1", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("ParsePrefixes() error = %v", err)
	}
	want := []string{"10.0.0.0/8", "192.0.2.1/32", "2001:db8::/32"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("prefix %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if _, err := ParsePrefixes([]string{"proxy.internal"}); err == nil {
		t.Fatal("expected hostnames to be rejected")
	}
}
