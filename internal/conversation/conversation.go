// Package conversation is a generation backend for OpenAI-compatible
// chat completion endpoints. The configured agent ID is sent as the model.
package conversation

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deusflow/newsbrief/internal/backend"
)

const systemPrompt = "You are a radio news anchor. You write scripts that are read aloud."

type Client struct {
	client  *openai.Client
	agentID string
}

// NewClient creates a conversation backend. An empty baseURL means the
// public OpenAI API.
func NewClient(apiKey, baseURL, agentID string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if agentID == "" {
		agentID = openai.GPT4oMini
	}
	return &Client{client: openai.NewClientWithConfig(cfg), agentID: agentID}
}

func (c *Client) Name() string { return backend.ModeConversation }

func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.agentID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.4,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", backend.Errorf(backend.InvalidResponse, c.Name(), "no response from %s", c.agentID)
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", backend.Errorf(backend.InvalidResponse, c.Name(), "empty response (finish reason %s)", resp.Choices[0].FinishReason)
	}
	return out, nil
}

func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	kind := backend.Unavailable
	if status == http.StatusTooManyRequests {
		kind = backend.Quota
	}
	return &backend.GenerationError{Kind: kind, Backend: backend.ModeConversation, Err: err}
}
