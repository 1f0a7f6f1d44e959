package openai

import (
	"encoding/json"
	"strings"

	"github.com/ClareAI/astra-call-relay/internal/domain"
)

// Assistants API request/response structures
type ThreadMessageInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CreateThreadRequest struct {
	Messages []ThreadMessageInput `json:"messages,omitempty"`
	Metadata map[string]string    `json:"metadata,omitempty"`
}

type Thread struct {
	ID        string            `json:"id"`
	Object    string            `json:"object"`
	CreatedAt int64             `json:"created_at"`
	Metadata  map[string]string `json:"metadata"`
}

type MessageText struct {
	Value       string            `json:"value"`
	Annotations []json.RawMessage `json:"annotations,omitempty"`
}

type MessageContent struct {
	Index int          `json:"index,omitempty"`
	Type  string       `json:"type"`
	Text  *MessageText `json:"text,omitempty"`
}

type Message struct {
	ID        string           `json:"id"`
	Object    string           `json:"object"`
	ThreadID  string           `json:"thread_id"`
	RunID     string           `json:"run_id,omitempty"`
	Role      string           `json:"role"`
	Content   []MessageContent `json:"content"`
	CreatedAt int64            `json:"created_at"`
}

// Text concatenates the text parts of the message
func (m *Message) Text() string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Text != nil {
			b.WriteString(c.Text.Value)
		}
	}
	return b.String()
}

type MessageList struct {
	Object  string    `json:"object"`
	Data    []Message `json:"data"`
	FirstID string    `json:"first_id"`
	LastID  string    `json:"last_id"`
	HasMore bool      `json:"has_more"`
}

type MessageDelta struct {
	ID    string `json:"id"`
	Delta struct {
		Content []MessageContent `json:"content"`
	} `json:"delta"`
}

type Assistant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Instructions string `json:"instructions"`
}

type RunRequest struct {
	AssistantID string `json:"assistant_id"`
	Stream      bool   `json:"stream"`
}

type SubmitToolOutputsRequest struct {
	ToolOutputs []domain.ToolOutput `json:"tool_outputs"`
	Stream      bool                `json:"stream"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type RequiredAction struct {
	Type              string `json:"type"`
	SubmitToolOutputs struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	} `json:"submit_tool_outputs"`
}

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Run struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	Status         string          `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
	LastError      *RunError       `json:"last_error,omitempty"`
}

type RunStep struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`
	Type  string `json:"type"`
}

// Chat completion structures
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
}
