// Package config handles Duetto configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// searchPathsFunc is overridden in tests to avoid finding real config
// files on developer/deploy machines.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/duetto/config.yaml, /config/config.yaml,
// /etc/duetto/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "duetto", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/duetto/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches searchPathsFunc() and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds all Duetto configuration. It is populated by layering
// in-code defaults, an optional YAML file, and environment variables
// (prefixed DUETTO_, with "__" as the nesting delimiter, e.g.
// DUETTO_SERVER__PORT), via viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Filing    FilingConfig    `mapstructure:"filing"`
	Approvals ApprovalsConfig `mapstructure:"approvals"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Filter    FilterConfig    `mapstructure:"filter"`
	ChatBot   ChatBotConfig   `mapstructure:"chatbot"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	RichCard  RichCardConfig  `mapstructure:"richcard"`
	AI        AIConfig        `mapstructure:"ai"`

	// NotifyMinPriority gates the fanout: alerts below this priority
	// are dropped before reaching any notifier. One of low, medium, high.
	NotifyMinPriority string `mapstructure:"notify_min_priority"`

	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig defines the push-subscriber HTTP/WebSocket listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// FilingConfig controls the SEC full-text/ATOM filing feed collector.
type FilingConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	UserAgent           string   `mapstructure:"user_agent"`
	PollIntervalSeconds int      `mapstructure:"poll_interval_seconds"`
	RateLimitSeconds    float64  `mapstructure:"rate_limit_seconds"`
	Forms               []string `mapstructure:"forms"`
	// FeedURLTemplate must contain a single "%s" placeholder for the
	// form type, e.g. "https://example.test/cgi-bin/browse-edgar?action=getcurrent&type=%s&output=atom".
	FeedURLTemplate string `mapstructure:"feed_url_template"`
}

// Configured reports whether a user agent string is set, the minimum
// required by SEC's fair-access policy for the filing feed.
func (c FilingConfig) Configured() bool {
	return c.UserAgent != ""
}

// ApprovalsConfig controls the drug/device approvals scraper.
type ApprovalsConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	// IndexURLTemplate must contain a single "%d" placeholder for the
	// calendar year, e.g. "https://example.test/approvals/novel-drug-approvals-%d".
	IndexURLTemplate string `mapstructure:"index_url_template"`
	LookbackYears    int    `mapstructure:"lookback_years"`
}

// QuotesConfig controls the real-time quote stream collector.
type QuotesConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	DialURL      string   `mapstructure:"dial_url"`
	AuthToken    string   `mapstructure:"auth_token"`
	Symbols      []string `mapstructure:"symbols"`
	ThresholdPct float64  `mapstructure:"threshold_pct"`
}

// FilterConfig holds cross-cutting filter parameters. MarketCapMin/Max
// are reserved for a future market-cap-aware processor stage.
type FilterConfig struct {
	MarketCapMin float64 `mapstructure:"market_cap_min"`
	MarketCapMax float64 `mapstructure:"market_cap_max"`
}

// ChatBotConfig configures the chat-bot push notifier.
type ChatBotConfig struct {
	Token  string `mapstructure:"token"`
	ChatID string `mapstructure:"chat_id"`
}

// SMTPConfig configures outbound email notifications.
type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	StartTLS bool     `mapstructure:"starttls"`
}

// WebhookConfig configures a generic outbound webhook notifier.
// Format is one of discord, slack, feishu, json.
type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Format string `mapstructure:"format"`
}

// AIConfig configures the optional AI-enrichment stage run before
// fanout. Provider is one of rule, chat_v1 (OpenAI-shaped), chat_v2
// (Anthropic-shaped).
type AIConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
}

// Configured reports whether the chat-bot notifier has both a token
// and a chat id. A partial configuration is treated as unconfigured.
func (c ChatBotConfig) Configured() bool {
	return c.Token != "" && c.ChatID != ""
}

// Configured reports whether enough SMTP fields are present to attempt
// a send.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// Configured reports whether the webhook notifier has both a URL and
// a non-empty format. The format value itself is not checked here.
func (c WebhookConfig) Configured() bool {
	return c.URL != "" && c.Format != ""
}

// RichCardConfig configures the interactive rich-card webhook notifier,
// a separate delivery target from WebhookConfig's generic payload.
type RichCardConfig struct {
	URL string `mapstructure:"url"`
}

// Configured reports whether a rich-card webhook URL is set.
func (c RichCardConfig) Configured() bool {
	return c.URL != ""
}

// Load reads configuration by layering in-code defaults, the YAML file
// at path (if non-empty), and environment variables prefixed
// DUETTO_, with "__" standing in for nesting (DUETTO_SERVER__PORT
// sets server.port). After Load returns
// successfully, all fields are usable without additional checks.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DUETTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setViperDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// setViperDefaults registers the in-code default layer, the lowest
// precedence layer under the YAML file and environment variables.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)

	v.SetDefault("filing.enabled", true)
	v.SetDefault("filing.user_agent", "Duetto research@duetto.example 1.0")
	v.SetDefault("filing.poll_interval_seconds", 15)
	v.SetDefault("filing.rate_limit_seconds", 0.5)
	v.SetDefault("filing.forms", []string{"8-K", "SC 13D", "SC 13D/A", "4"})
	v.SetDefault("filing.feed_url_template", "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&type=%s&output=atom")

	v.SetDefault("approvals.enabled", true)
	v.SetDefault("approvals.poll_interval_seconds", 3600)
	v.SetDefault("approvals.index_url_template", "https://example.test/approvals/novel-drug-approvals-%d")
	v.SetDefault("approvals.lookback_years", 1)

	v.SetDefault("quotes.enabled", false)
	v.SetDefault("quotes.threshold_pct", 5.0)
	v.SetDefault("quotes.dial_url", "wss://data.example.test/quote_stream")

	v.SetDefault("chatbot.token", "")
	v.SetDefault("chatbot.chat_id", "")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.starttls", true)

	v.SetDefault("webhook.format", "json")

	v.SetDefault("richcard.url", "")

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.provider", "rule")

	v.SetDefault("notify_min_priority", "medium")
	v.SetDefault("log_level", "info")
}

// Validate checks that the configuration is internally consistent.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range (1-65535)", c.Server.Port)
	}
	if c.Filing.PollIntervalSeconds < 1 {
		return fmt.Errorf("filing.poll_interval_seconds must be >= 1, got %d", c.Filing.PollIntervalSeconds)
	}
	if c.Approvals.PollIntervalSeconds < 1 {
		return fmt.Errorf("approvals.poll_interval_seconds must be >= 1, got %d", c.Approvals.PollIntervalSeconds)
	}
	if c.Quotes.Enabled && c.Quotes.ThresholdPct <= 0 {
		return fmt.Errorf("quotes.threshold_pct must be > 0, got %v", c.Quotes.ThresholdPct)
	}
	if c.Webhook.URL != "" {
		switch c.Webhook.Format {
		case "discord", "slack", "feishu", "json":
		default:
			return fmt.Errorf("webhook.format %q must be one of discord, slack, feishu, json", c.Webhook.Format)
		}
	}
	if c.AI.Enabled {
		switch c.AI.Provider {
		case "rule", "chat_v1", "chat_v2":
		default:
			return fmt.Errorf("ai.provider %q must be one of rule, chat_v1, chat_v2", c.AI.Provider)
		}
		if c.AI.Provider != "rule" && c.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required for provider %q", c.AI.Provider)
		}
	}
	switch c.NotifyMinPriority {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("notify_min_priority %q must be one of low, medium, high", c.NotifyMinPriority)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration with no external integrations
// enabled. It is valid on its own: Validate() passes without a config
// file or any environment variables set.
func Default() *Config {
	v := viper.New()
	setViperDefaults(v)
	cfg := &Config{}
	// Unmarshal errors are impossible here: every default value above
	// is a literal of the matching field type.
	_ = v.Unmarshal(cfg)
	return cfg
}
