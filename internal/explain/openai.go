package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	systemPrompt = "You are a fashion assistant. In 2-3 short sentences, give a friendly opinion on how well this outfit matches the user's request. Be concise."
	maxTokens    = 100
	temperature  = 0.5
)

// ErrNoChoices is returned when the model answers with no completion.
var ErrNoChoices = errors.New("chat completion returned no choices")

// Generator produces a short opinion on an outfit for a prompt.
type Generator interface {
	Explain(ctx context.Context, prompt, description string) (string, error)
}

// OpenAIConfig points the generator at any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxRetries overrides the client's retry count when >= 0.
	MaxRetries int
}

// OpenAI explains outfits with a chat completion model.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (o *OpenAI) Explain(ctx context.Context, prompt, description string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(UserMessage(prompt, description)),
		},
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// UserMessage is the user turn sent to the model.
func UserMessage(prompt, description string) string {
	return fmt.Sprintf("User request: %q\n\nOutfit: %s\n\nBrief opinion:", prompt, description)
}
