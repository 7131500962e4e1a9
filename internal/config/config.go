// Package config loads and validates analyzer configuration via Viper.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Crawler providers.
const (
	ProviderAPI    = "api"
	ProviderDirect = "direct"
)

// EnvPrefix namespaces environment overrides, e.g. ANALYZER_LLM_API_KEY.
const EnvPrefix = "ANALYZER"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	LLM       LLMConfig       `mapstructure:"llm"`
	DB        DBConfig        `mapstructure:"db"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	Environment           string `mapstructure:"environment"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	// TrustedProxies lists the CIDRs or addresses whose X-Forwarded-For
	// hops are believed when identifying a client. Empty trusts no one.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// CrawlerConfig selects and tunes the content fetcher.
type CrawlerConfig struct {
	Provider       string `mapstructure:"provider"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	WaitForMs      int    `mapstructure:"wait_for_ms"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	// AllowPrivateNetworks lets the direct provider reach non-public hosts.
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks"`
}

// LLMConfig configures the language model client.
type LLMConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxConns    int    `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// AdminConfig guards the reporting endpoints. An empty token disables them.
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// RateLimitConfig bounds analysis requests per client.
type RateLimitConfig struct {
	Requests      int `mapstructure:"requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// PubSubConfig holds metadata for lead notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("crawler.provider", ProviderAPI)
	v.SetDefault("crawler.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("crawler.api_key", "")
	v.SetDefault("crawler.wait_for_ms", 3000)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.user_agent", "website-growth-analyzer/1.0")
	v.SetDefault("crawler.allow_private_networks", false)
	v.SetDefault("llm.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("admin.token", "")
	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window_seconds", 900)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if _, err := ParsePrefixes(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}
	switch c.Crawler.Provider {
	case ProviderAPI:
		if c.Crawler.BaseURL == "" {
			return fmt.Errorf("crawler.base_url is required for the api provider")
		}
	case ProviderDirect:
	default:
		return fmt.Errorf("crawler.provider must be %q or %q", ProviderAPI, ProviderDirect)
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.WaitForMs < 0 {
		return fmt.Errorf("crawler.wait_for_ms must be >= 0")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm.timeout_seconds must be > 0")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("llm.temperature must be between 0 and 1")
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("db.max_conns must be > 0")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.requests and rate_limit.window_seconds must be > 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// IsDevelopment reports whether detailed errors may be returned to callers.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Environment, "development")
}

// TrustedProxyPrefixes returns the parsed trusted proxy ranges. Invalid
// entries are rejected by Validate.
func (c Config) TrustedProxyPrefixes() []netip.Prefix {
	prefixes, _ := ParsePrefixes(c.Server.TrustedProxies)
	return prefixes
}

// ParsePrefixes accepts CIDRs and bare addresses; a bare address becomes a
// single-host prefix.
func ParsePrefixes(raw []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// RequestTimeout bounds a single inbound request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// CrawlerTimeout bounds a single crawl call.
func (c Config) CrawlerTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// CrawlerWaitFor is how long the crawler lets dynamic content settle.
func (c Config) CrawlerWaitFor() time.Duration {
	return time.Duration(c.Crawler.WaitForMs) * time.Millisecond
}

// LLMTimeout bounds a single model call.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// RateLimitWindow is the refill window of the inbound limiter.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}
