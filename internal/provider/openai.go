package provider

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aviary-ai/aviary/internal/model"
)

// OpenAI calls the Chat Completions API with the official client. The same
// adapter serves openai-compatible endpoints via a custom base URL.
type OpenAI struct {
	apiKey  string
	baseURL string
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, *model.TokenUsage, error) {
	key := req.APIKey
	if key == "" {
		key = o.apiKey
	}
	base := req.BaseURL
	if base == "" {
		base = o.baseURL
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	client := openai.NewClient(opts...)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.Params.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.Params.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Unit.Model),
		Messages: messages,
	}
	if req.Params.Temperature != nil {
		params.Temperature = openai.Float(*req.Params.Temperature)
	}
	if req.Params.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Params.MaxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("empty completion response")
	}

	usage := &model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}
