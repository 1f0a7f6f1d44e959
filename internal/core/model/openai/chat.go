package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// CreateChatCompletion sends a non-streaming chat completion request.
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	var out ChatCompletionResponse
	if err := c.do(ctx, http.MethodPost, "/chat/completions", req, &out, false); err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return &out, nil
}

// FirstContent returns the content of the first choice
func (r *ChatCompletionResponse) FirstContent() (string, error) {
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == "" {
		return "", errors.New("no response received")
	}
	return r.Choices[0].Message.Content, nil
}
