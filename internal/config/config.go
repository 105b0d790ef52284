// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Cache   CacheConfig   `mapstructure:"cache"`
	DNS     DNSConfig     `mapstructure:"dns"`
	Logging LoggingConfig `mapstructure:"logging"`
	Debug   bool          `mapstructure:"debug"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// APIConfig holds the backend microservice endpoints and client behavior.
type APIConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// PoolEnabled selects the shared outbound connection pool. When false,
	// each call uses a dedicated client and forwards the caller's trace
	// headers to the backend.
	PoolEnabled bool `mapstructure:"pool_enabled"`
}

// AuthConfig holds the synthetic tokens handed to classified crawlers.
type AuthConfig struct {
	VerifiedBotToken     string `mapstructure:"verified_bot_token"`
	UnverifiableBotToken string `mapstructure:"unverifiable_bot_token"`
}

// CacheConfig selects and tunes the TTL cache tier.
type CacheConfig struct {
	RedisURL       string `mapstructure:"redis_url"`
	MemoryEntries  int    `mapstructure:"memory_entries"`
	BotTTLSeconds  int    `mapstructure:"bot_ttl_seconds"`
	DataTTLSeconds int    `mapstructure:"data_ttl_seconds"`
	BotKeyPrefix   string `mapstructure:"bot_key_prefix"`
	DataKeyPrefix  string `mapstructure:"data_key_prefix"`
}

// DNSConfig bounds crawler verification lookups.
type DNSConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADSCORE")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("api.url", "https://api.adsabs.harvard.edu/v1/")
	v.SetDefault("api.timeout_seconds", 90)
	v.SetDefault("api.pool_enabled", true)
	v.SetDefault("cache.memory_entries", 4096)
	v.SetDefault("cache.bot_ttl_seconds", 300)
	v.SetDefault("cache.data_ttl_seconds", 3600)
	v.SetDefault("cache.bot_key_prefix", "bot")
	v.SetDefault("cache.data_key_prefix", "data")
	v.SetDefault("dns.timeout_seconds", 2)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("debug", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.API.URL == "" {
		return fmt.Errorf("api.url must be set")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.DNS.TimeoutSeconds <= 0 {
		return fmt.Errorf("dns.timeout_seconds must be > 0")
	}
	if c.Cache.BotTTLSeconds <= 0 || c.Cache.DataTTLSeconds <= 0 {
		return fmt.Errorf("cache TTLs must be > 0")
	}
	if c.Cache.MemoryEntries <= 0 {
		return fmt.Errorf("cache.memory_entries must be > 0")
	}
	return nil
}

// APITimeout returns the backend call budget as a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// DNSTimeout returns the resolver budget as a duration.
func (c Config) DNSTimeout() time.Duration {
	return time.Duration(c.DNS.TimeoutSeconds) * time.Second
}

// BotTTL returns the classification cache lifetime.
func (c Config) BotTTL() time.Duration {
	return time.Duration(c.Cache.BotTTLSeconds) * time.Second
}

// DataTTL returns the search/document cache lifetime.
func (c Config) DataTTL() time.Duration {
	return time.Duration(c.Cache.DataTTLSeconds) * time.Second
}

// Service returns the absolute URL for a backend service path,
// e.g. Service("accounts/bootstrap").
func (c Config) Service(path string) string {
	return strings.TrimRight(c.API.URL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Well-known backend service paths, relative to api.url.
const (
	BootstrapService   = "accounts/bootstrap"
	SearchService      = "search/query"
	ExportService      = "export/bibtex"
	VaultService       = "vault/query"
	ObjectsService     = "objects/query"
	ResolverService    = "resolver/"
	GraphicsService    = "graphics/"
	MetricsService     = "metrics"
	LinkGatewayService = "resolver/gateway/"
	ReferenceService   = "reference/text"
)
