package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds the provider settings.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenAIModel calls the chat completion API with a strict JSON-schema
// response format.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel builds a client from cfg. Model defaults to gpt-4o-mini.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: missing API key")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(oc), model: model}, nil
}

// GenerateJSON sends task and returns the raw JSON answer. Transport errors
// are returned wrapped; a reply without content yields ErrEmptyResponse.
func (m *OpenAIModel) GenerateJSON(ctx context.Context, task Task) (string, error) {
	if m == nil || m.client == nil {
		return "", errors.New("openai client not initialized")
	}
	input, err := json.Marshal(task.Input)
	if err != nil {
		return "", fmt.Errorf("encode task input: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: task.Instructions},
			{Role: openai.ChatMessageRoleUser, Content: string(input)},
		},
		Temperature: 0.2,
	}
	if len(task.Schema) > 0 {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   task.Name,
				Schema: task.Schema,
				Strict: true,
			},
		}
	} else {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai %s: %w", task.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
