package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tinyland-inc/omnichat/pkg/config"
	"github.com/tinyland-inc/omnichat/pkg/hub"
)

type anthropicResponder struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature *float64
	system      string
}

func newAnthropic(cfg config.ResponderConfig) *anthropicResponder {
	opts := []option.RequestOption{option.WithAuthToken(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(cfg.APIBase)))
	}
	return &anthropicResponder{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		system:      systemPrompt(cfg),
	}
}

func (r *anthropicResponder) Respond(ctx context.Context, msg hub.Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: int64(r.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: r.system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt(msg))),
		},
	}
	if r.temperature != nil {
		params.Temperature = anthropic.Float(*r.temperature)
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		return "", fmt.Errorf("anthropic request: empty response")
	}
	return reply, nil
}
