package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tinyland-inc/omnichat/pkg/config"
	"github.com/tinyland-inc/omnichat/pkg/hub"
)

type openaiResponder struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature *float64
	system      string
}

func newOpenAI(cfg config.ResponderConfig) *openaiResponder {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(cfg.APIBase)))
	}
	return &openaiResponder{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		system:      systemPrompt(cfg),
	}
}

func (r *openaiResponder) Respond(ctx context.Context, msg hub.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(r.system),
			openai.UserMessage(prompt(msg)),
		},
	}
	if r.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(r.maxTokens))
	}
	if r.temperature != nil {
		params.Temperature = openai.Float(*r.temperature)
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai request: empty response")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("openai request: empty response")
	}
	return reply, nil
}
