// Package responder implements AI reply generation on top of the hub's
// Responder contract.
package responder

import (
	"fmt"
	"strings"

	"github.com/tinyland-inc/omnichat/pkg/config"
	"github.com/tinyland-inc/omnichat/pkg/hub"
)

const defaultSystemPrompt = "You are a helpful assistant replying inside a chat channel. " +
	"Keep answers short and conversational."

// New builds a responder for the configured provider.
func New(cfg config.ResponderConfig) (hub.Responder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("responder: API key required")
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return newAnthropic(cfg), nil
	case "openai":
		return newOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("responder: unknown provider %q", cfg.Provider)
	}
}

func systemPrompt(cfg config.ResponderConfig) string {
	if cfg.SystemPrompt != "" {
		return cfg.SystemPrompt
	}
	return defaultSystemPrompt
}

// prompt frames the normalized message with its origin so the model
// knows where the conversation is happening.
func prompt(msg hub.Message) string {
	channel := msg.ChannelName
	if channel == "" {
		channel = msg.ChannelID
	}
	author := msg.Author.DisplayName
	if author == "" {
		author = msg.Author.Username
	}
	return fmt.Sprintf("[%s #%s] %s: %s", msg.Platform, channel, author, msg.Content)
}

func normalizeBaseURL(base string) string {
	return strings.TrimRight(base, "/")
}
