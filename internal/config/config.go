package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure. Loaded once at startup
// and immutable for the process lifetime.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Providers []ProviderConfig `json:"providers"`
	Routes    map[string]Route `json:"routes"`
	Gateway   GatewayConfig    `json:"gateway"`
	Bot       BotConfig        `json:"bot"`
	Cooldowns CooldownConfig   `json:"cooldowns"`
	Context   ContextConfig    `json:"context"`
	Database  DatabaseConfig   `json:"database"`
	Embedding EmbeddingConfig  `json:"embedding"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"` // "openai" (xAI-compatible) or "anthropic"
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Route binds an inference purpose (decide, notes, search, image) to a
// provider and model.
type Route struct {
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	Fallbacks []string `json:"fallbacks,omitempty"` // provider ids, same model
}

type GatewayConfig struct {
	Discord DiscordGatewayConfig `json:"discord"`
	Slack   SlackGatewayConfig   `json:"slack"`
	REST    RESTGatewayConfig    `json:"rest"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
}

type RESTGatewayConfig struct {
	Enabled bool `json:"enabled"`
}

type BotConfig struct {
	// ActivationPattern is matched (case-insensitive) against channel
	// names; messages elsewhere are ignored unless they reply to the bot.
	ActivationPattern string `json:"activation_pattern"`
	SystemPrompt      string `json:"system_prompt"`
}

// CooldownConfig holds per-capability cooldowns in seconds; zero means the
// capability is not gated.
type CooldownConfig struct {
	Seconds map[string]int `json:"seconds"`
	// RefundOnFailure releases a reservation when the action fails. Off by
	// default: a failed generation still consumes the window.
	RefundOnFailure bool `json:"refund_on_failure"`
}

// Duration returns the configured cooldown for a capability.
func (c CooldownConfig) Duration(capability string) time.Duration {
	return time.Duration(c.Seconds[capability]) * time.Second
}

type ContextConfig struct {
	ReplyDepth         int `json:"reply_depth"`          // max reply-chain walk
	ChannelWindow      int `json:"channel_window"`       // turns in window mode
	HistoryWindowHours int `json:"history_window_hours"` // hard age cap
	CallTimeoutSeconds int `json:"call_timeout_seconds"` // external call timeout
}

// HistoryWindow returns the maximum age of reconstructed context.
func (c ContextConfig) HistoryWindow() time.Duration {
	return time.Duration(c.HistoryWindowHours) * time.Hour
}

// CallTimeout returns the per-external-call timeout.
func (c ContextConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable
// references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3210
	}
	if c.Bot.ActivationPattern == "" {
		c.Bot.ActivationPattern = "snark"
	}
	if c.Cooldowns.Seconds == nil {
		c.Cooldowns.Seconds = map[string]int{
			"image":    600,
			"document": 600,
			"file":     600,
		}
	}
	if c.Context.ReplyDepth == 0 {
		c.Context.ReplyDepth = 10
	}
	if c.Context.ChannelWindow == 0 {
		c.Context.ChannelWindow = 10
	}
	if c.Context.HistoryWindowHours == 0 {
		c.Context.HistoryWindowHours = 720 // 30 days
	}
	if c.Context.CallTimeoutSeconds == 0 {
		c.Context.CallTimeoutSeconds = 120
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if _, err := regexp.Compile("(?i)" + c.Bot.ActivationPattern); err != nil {
		return fmt.Errorf("invalid activation_pattern: %w", err)
	}
	if c.Gateway.Discord.Enabled && c.Gateway.Discord.BotToken == "" {
		return fmt.Errorf("discord gateway enabled but bot_token empty")
	}
	if c.Gateway.Slack.Enabled {
		if c.Gateway.Slack.BotToken == "" || c.Gateway.Slack.AppToken == "" {
			return fmt.Errorf("slack gateway enabled but tokens missing")
		}
	}
	for name, secs := range c.Cooldowns.Seconds {
		if secs < 0 {
			return fmt.Errorf("negative cooldown for capability %q", name)
		}
	}
	if c.Context.ReplyDepth < 1 {
		return fmt.Errorf("reply_depth must be >= 1")
	}
	if c.Context.HistoryWindowHours < 1 {
		return fmt.Errorf("history_window_hours must be >= 1")
	}
	providerIDs := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		providerIDs[p.ID] = true
	}
	for purpose, route := range c.Routes {
		if !providerIDs[route.Provider] {
			return fmt.Errorf("route %q references unknown provider %q", purpose, route.Provider)
		}
		for _, fb := range route.Fallbacks {
			if !providerIDs[fb] {
				return fmt.Errorf("route %q fallback references unknown provider %q", purpose, fb)
			}
		}
	}
	return nil
}
