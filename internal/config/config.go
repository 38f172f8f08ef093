// Package config loads the feed daemon's yaml configuration and maps it onto
// the engine, relay and store settings.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr/nip19"
	"gopkg.in/yaml.v3"

	"nostr-feed/internal/engine"
	"nostr-feed/internal/nostr"
	"nostr-feed/internal/relay"
	"nostr-feed/internal/store"
	"nostr-feed/internal/types"
)

//go:embed default.yaml
var defaultConfig []byte

// DefaultPath is used when FEED_CONFIG is unset
const DefaultPath = "config/feed.yaml"

// Config is the top-level configuration
type Config struct {
	Relays   []string `yaml:"relays"`
	Identity Identity `yaml:"identity"`
	Feed     Feed     `yaml:"feed"`
	Limits   Limits   `yaml:"limits"`
	Timing   Timing   `yaml:"timing"`
	Logging  Logging  `yaml:"logging"`
	Store    Store    `yaml:"store"`
	HTTP     HTTP     `yaml:"http"`
}

// Identity is the local user. Keys accept hex or bech32 (npub/nsec).
type Identity struct {
	PubKey    string `yaml:"pubkey"`
	SecretKey string `yaml:"secret_key"`
}

// Feed selects the initial view
type Feed struct {
	View            string `yaml:"view"`
	Author          string `yaml:"author"`
	PageLimit       int    `yaml:"page_limit"`
	AuthorShardSize int    `yaml:"author_shard_size"`
	RelayHint       string `yaml:"relay_hint"`
}

// Limits are the cache ceilings
type Limits struct {
	PostCeiling     int     `yaml:"post_ceiling"`
	ProfileCeiling  int     `yaml:"profile_ceiling"`
	RenderedCeiling int     `yaml:"rendered_ceiling"`
	ReactiveRatio   float64 `yaml:"reactive_ratio"`
	SeenSetSize     uint32  `yaml:"seen_set_size"`
	QuoteCacheSize  uint32  `yaml:"quote_cache_size"`
}

// Timing holds every engine and relay duration
type Timing struct {
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	ProfileDebounce   time.Duration `yaml:"profile_debounce"`
	ProfilePendingTTL time.Duration `yaml:"profile_pending_ttl"`
	LoadingFallback   time.Duration `yaml:"loading_fallback"`
	FetchGrace        time.Duration `yaml:"fetch_grace"`
	PageGrace         time.Duration `yaml:"page_grace"`
	QuoteTTL          time.Duration `yaml:"quote_ttl"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// Logging configures the slog handler
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Store configures snapshot persistence
type Store struct {
	RedisURL      string        `yaml:"redis_url"`
	Prefix        string        `yaml:"prefix"`
	ProfileTTL    time.Duration `yaml:"profile_ttl"`
	FollowsTTL    time.Duration `yaml:"follows_ttl"`
	QueueSize     int           `yaml:"queue_size"`
	MemoryMaxKeys int           `yaml:"memory_max_keys"`
}

// HTTP configures the health and metrics listener
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Default returns the embedded configuration
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfig, &cfg); err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return &cfg
}

// Example returns the embedded configuration file as written
func Example() []byte {
	return append([]byte(nil), defaultConfig...)
}

// Load reads path, fills unset fields from the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads FEED_CONFIG (or DefaultPath). A missing or invalid file
// is logged and replaced by the embedded defaults, with environment
// overrides still applied.
func LoadOrDefault() *Config {
	path := os.Getenv("FEED_CONFIG")
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", path)
		} else {
			slog.Warn("could not read config, using defaults", "path", path, "error", err)
		}
		return fallback()
	}

	cfg, err := parse(data)
	if err != nil {
		slog.Error("invalid config, using defaults", "path", path, "error", err)
		return fallback()
	}

	slog.Info("loaded configuration", "path", path, "relays", len(cfg.Relays), "view", cfg.Feed.View)
	return cfg
}

func fallback() *Config {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.normalize(); err != nil {
		// Only an environment override can break the embedded defaults.
		slog.Error("environment override rejected", "error", err)
		cfg = Default()
		cfg.normalize()
	}
	return cfg
}

// applyDefaults fills in zero-valued fields from the embedded defaults
func applyDefaults(cfg *Config) {
	d := Default()

	if len(cfg.Relays) == 0 {
		cfg.Relays = d.Relays
	}
	if cfg.Feed.View == "" {
		cfg.Feed.View = d.Feed.View
	}
	if cfg.Feed.PageLimit == 0 {
		cfg.Feed.PageLimit = d.Feed.PageLimit
	}
	if cfg.Feed.AuthorShardSize == 0 {
		cfg.Feed.AuthorShardSize = d.Feed.AuthorShardSize
	}

	if cfg.Limits.PostCeiling == 0 {
		cfg.Limits.PostCeiling = d.Limits.PostCeiling
	}
	if cfg.Limits.ProfileCeiling == 0 {
		cfg.Limits.ProfileCeiling = d.Limits.ProfileCeiling
	}
	if cfg.Limits.RenderedCeiling == 0 {
		cfg.Limits.RenderedCeiling = d.Limits.RenderedCeiling
	}
	if cfg.Limits.ReactiveRatio == 0 {
		cfg.Limits.ReactiveRatio = d.Limits.ReactiveRatio
	}
	if cfg.Limits.SeenSetSize == 0 {
		cfg.Limits.SeenSetSize = d.Limits.SeenSetSize
	}
	if cfg.Limits.QuoteCacheSize == 0 {
		cfg.Limits.QuoteCacheSize = d.Limits.QuoteCacheSize
	}

	t, dt := &cfg.Timing, d.Timing
	for _, p := range []struct{ v *time.Duration; def time.Duration }{
		{&t.SweepInterval, dt.SweepInterval},
		{&t.ProfileDebounce, dt.ProfileDebounce},
		{&t.ProfilePendingTTL, dt.ProfilePendingTTL},
		{&t.LoadingFallback, dt.LoadingFallback},
		{&t.FetchGrace, dt.FetchGrace},
		{&t.PageGrace, dt.PageGrace},
		{&t.QuoteTTL, dt.QuoteTTL},
		{&t.ReconnectDelay, dt.ReconnectDelay},
		{&t.WriteTimeout, dt.WriteTimeout},
	} {
		if *p.v == 0 {
			*p.v = p.def
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}

	if cfg.Store.Prefix == "" {
		cfg.Store.Prefix = d.Store.Prefix
	}
	if cfg.Store.ProfileTTL == 0 {
		cfg.Store.ProfileTTL = d.Store.ProfileTTL
	}
	if cfg.Store.FollowsTTL == 0 {
		cfg.Store.FollowsTTL = d.Store.FollowsTTL
	}
	if cfg.Store.QueueSize == 0 {
		cfg.Store.QueueSize = d.Store.QueueSize
	}
	if cfg.Store.MemoryMaxKeys == 0 {
		cfg.Store.MemoryMaxKeys = d.Store.MemoryMaxKeys
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = d.HTTP.Addr
	}
}

// applyEnvOverrides applies LOG_LEVEL, REDIS_URL and FEED_SECRET_KEY
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Store.RedisURL = redisURL
	}
	if secret := os.Getenv("FEED_SECRET_KEY"); secret != "" {
		cfg.Identity.SecretKey = secret
	}
}

// normalize decodes bech32 keys to hex and validates the result
func (c *Config) normalize() error {
	var errs []error

	var err error
	if c.Identity.PubKey, err = decodeKey(c.Identity.PubKey, "npub"); err != nil {
		errs = append(errs, fmt.Errorf("identity.pubkey: %w", err))
	}
	if c.Identity.SecretKey, err = decodeKey(c.Identity.SecretKey, "nsec"); err != nil {
		errs = append(errs, fmt.Errorf("identity.secret_key: %w", err))
	}
	if c.Feed.Author, err = decodeKey(c.Feed.Author, "npub"); err != nil {
		errs = append(errs, fmt.Errorf("feed.author: %w", err))
	}

	kind, err := types.ParseFeedKind(c.Feed.View)
	if err != nil {
		errs = append(errs, fmt.Errorf("feed.view: %w", err))
	} else if kind == types.FeedAuthor && c.Feed.Author == "" {
		errs = append(errs, errors.New("feed.author is required for the author view"))
	}

	valid := c.Relays[:0]
	for _, u := range c.Relays {
		if n := nostr.NormalizeRelayURL(u); n != "" {
			valid = append(valid, n)
		} else {
			slog.Warn("ignoring invalid relay url", "url", u)
		}
	}
	c.Relays = valid
	if len(c.Relays) == 0 {
		errs = append(errs, errors.New("at least one relay is required"))
	}

	if c.Feed.PageLimit < 1 {
		errs = append(errs, errors.New("feed.page_limit must be positive"))
	}
	if c.Limits.ReactiveRatio < 1 {
		errs = append(errs, errors.New("limits.reactive_ratio must be at least 1"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// decodeKey accepts a 64-char hex key or a bech32 key with the given prefix
func decodeKey(key, prefix string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}
	if nostr.IsHex64(key) {
		return strings.ToLower(key), nil
	}
	if !strings.HasPrefix(key, prefix+"1") {
		return "", fmt.Errorf("expected hex or %s", prefix)
	}
	if p, value, err := nip19.Decode(key); err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", prefix, err)
	} else if p != prefix {
		return "", fmt.Errorf("expected %s, got %s", prefix, p)
	} else {
		return value.(string), nil
	}
}

// View returns the configured initial feed view
func (c *Config) View() types.FeedView {
	kind, _ := types.ParseFeedKind(c.Feed.View)
	return types.FeedView{Kind: kind, Author: c.Feed.Author}
}

// EngineOptions maps the configuration onto engine settings. Clock and Store
// are left for the caller.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		View:              c.View(),
		PageLimit:         c.Feed.PageLimit,
		AuthorShardSize:   c.Feed.AuthorShardSize,
		PostCeiling:       c.Limits.PostCeiling,
		ProfileCeiling:    c.Limits.ProfileCeiling,
		RenderedCeiling:   c.Limits.RenderedCeiling,
		ReactiveRatio:     c.Limits.ReactiveRatio,
		SweepInterval:     c.Timing.SweepInterval,
		ProfileDebounce:   c.Timing.ProfileDebounce,
		ProfilePendingTTL: c.Timing.ProfilePendingTTL,
		LoadingFallback:   c.Timing.LoadingFallback,
		FetchGrace:        c.Timing.FetchGrace,
		PageGrace:         c.Timing.PageGrace,
		SeenSetSize:       c.Limits.SeenSetSize,
		QuoteCacheSize:    c.Limits.QuoteCacheSize,
		QuoteTTL:          c.Timing.QuoteTTL,
		RelayHint:         c.Feed.RelayHint,
	}
}

// RelayOptions maps the configuration onto relay manager settings
func (c *Config) RelayOptions() relay.Options {
	return relay.Options{
		ReconnectDelay: c.Timing.ReconnectDelay,
		WriteTimeout:   c.Timing.WriteTimeout,
	}
}

// StoreConfig maps the configuration onto snapshot store settings
func (c *Config) StoreConfig() store.Config {
	sc := store.DefaultConfig()
	sc.RedisURL = c.Store.RedisURL
	sc.Prefix = c.Store.Prefix
	sc.ProfileTTL = c.Store.ProfileTTL
	sc.FollowsTTL = c.Store.FollowsTTL
	sc.QueueSize = c.Store.QueueSize
	sc.MemoryMaxKeys = c.Store.MemoryMaxKeys
	return sc
}
