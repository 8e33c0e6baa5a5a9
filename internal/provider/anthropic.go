package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aviary-ai/aviary/internal/model"
)

const anthropicDefaultMaxTokens = 4096

// Anthropic calls the Messages API with the official client.
type Anthropic struct {
	apiKey string
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, *model.TokenUsage, error) {
	key := req.APIKey
	if key == "" {
		key = a.apiKey
	}
	client := anthropic.NewClient(option.WithAPIKey(key))

	maxTokens := int64(req.Params.MaxTokens)
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Unit.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Params.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Params.Temperature)
	}
	if req.Params.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Params.SystemPrompt}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	usage := &model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	return sb.String(), usage, nil
}
