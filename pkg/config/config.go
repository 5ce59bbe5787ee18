package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Channels   ChannelsConfig    `json:"channels"`
	Responder  ResponderConfig   `json:"responder"`
	Gateway    GatewayConfig     `json:"gateway"`
	Broadcasts []BroadcastConfig `json:"broadcasts,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled   bool                `env:"OMNICHAT_CHANNELS_TELEGRAM_ENABLED"    json:"enabled"`
	Token     string              `env:"OMNICHAT_CHANNELS_TELEGRAM_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"OMNICHAT_CHANNELS_TELEGRAM_ALLOW_FROM" json:"allow_from"`
}

type SlackConfig struct {
	Enabled   bool                `env:"OMNICHAT_CHANNELS_SLACK_ENABLED"    json:"enabled"`
	BotToken  string              `env:"OMNICHAT_CHANNELS_SLACK_BOT_TOKEN"  json:"bot_token"`
	AppToken  string              `env:"OMNICHAT_CHANNELS_SLACK_APP_TOKEN"  json:"app_token"`
	AllowFrom FlexibleStringSlice `env:"OMNICHAT_CHANNELS_SLACK_ALLOW_FROM" json:"allow_from"`
}

type DiscordConfig struct {
	Enabled   bool                `env:"OMNICHAT_CHANNELS_DISCORD_ENABLED"    json:"enabled"`
	Token     string              `env:"OMNICHAT_CHANNELS_DISCORD_TOKEN"      json:"token"`
	AllowFrom FlexibleStringSlice `env:"OMNICHAT_CHANNELS_DISCORD_ALLOW_FROM" json:"allow_from"`
}

// ResponderConfig selects and configures the AI responder backend.
type ResponderConfig struct {
	Enabled      bool     `env:"OMNICHAT_RESPONDER_ENABLED"       json:"enabled"`
	Provider     string   `env:"OMNICHAT_RESPONDER_PROVIDER"      json:"provider"` // "anthropic" or "openai"
	APIKey       string   `env:"OMNICHAT_RESPONDER_API_KEY"       json:"api_key"`
	APIBase      string   `env:"OMNICHAT_RESPONDER_API_BASE"      json:"api_base,omitempty"`
	Model        string   `env:"OMNICHAT_RESPONDER_MODEL"         json:"model,omitempty"`
	MaxTokens    int      `env:"OMNICHAT_RESPONDER_MAX_TOKENS"    json:"max_tokens"`
	Temperature  *float64 `env:"OMNICHAT_RESPONDER_TEMPERATURE"   json:"temperature,omitempty"`
	SystemPrompt string   `env:"OMNICHAT_RESPONDER_SYSTEM_PROMPT" json:"system_prompt,omitempty"`
}

type GatewayConfig struct {
	Host string `env:"OMNICHAT_GATEWAY_HOST" json:"host"`
	Port int    `env:"OMNICHAT_GATEWAY_PORT" json:"port"`
}

// BroadcastConfig describes a recurring cross-channel broadcast.
// Channels entries use "platform:channelID" form; an empty list means
// every channel the hub has observed, on every registered platform.
type BroadcastConfig struct {
	Name     string   `json:"name"`
	Cron     string   `json:"cron"`
	Content  string   `json:"content"`
	Channels []string `json:"channels,omitempty"`
}

func (b *BroadcastConfig) Validate() error {
	if b.Name == "" {
		return errors.New("name is required")
	}
	if b.Cron == "" {
		return errors.New("cron is required")
	}
	if b.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Responder: ResponderConfig{
			Provider:  "anthropic",
			MaxTokens: 1024,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18790,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file is fine; env vars may carry everything.
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.ValidateBroadcasts(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// ValidateBroadcasts checks every broadcast entry for required fields.
func (c *Config) ValidateBroadcasts() error {
	for i := range c.Broadcasts {
		if err := c.Broadcasts[i].Validate(); err != nil {
			return fmt.Errorf("broadcasts[%d]: %w", i, err)
		}
	}
	return nil
}
