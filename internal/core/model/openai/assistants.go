package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ClareAI/astra-call-relay/internal/domain"
)

// CreateThread creates a thread seeded with the given messages
func (c *Client) CreateThread(ctx context.Context, req *CreateThreadRequest) (*Thread, error) {
	var thread Thread
	if err := c.do(ctx, http.MethodPost, "/threads", req, &thread, true); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &thread, nil
}

// RetrieveThread fetches a thread and its metadata
func (c *Client) RetrieveThread(ctx context.Context, threadID string) (*Thread, error) {
	var thread Thread
	if err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID), nil, &thread, true); err != nil {
		return nil, fmt.Errorf("retrieve thread %s: %w", threadID, err)
	}
	return &thread, nil
}

// CreateMessage appends a message to a thread
func (c *Client) CreateMessage(ctx context.Context, threadID string, msg ThreadMessageInput) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", msg, &out, true); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &out, nil
}

// ListMessages returns up to limit messages of a thread, newest first
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) (*MessageList, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out MessageList
	if err := c.do(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return &out, nil
}

// RetrieveAssistant fetches an assistant definition
func (c *Client) RetrieveAssistant(ctx context.Context, assistantID string) (*Assistant, error) {
	var out Assistant
	if err := c.do(ctx, http.MethodGet, "/assistants/"+url.PathEscape(assistantID), nil, &out, true); err != nil {
		return nil, fmt.Errorf("retrieve assistant: %w", err)
	}
	return &out, nil
}

// StreamRun starts a streamed run of assistantID on the thread.
// The stream ends when the run completes, fails, requires action or ctx is cancelled.
func (c *Client) StreamRun(ctx context.Context, threadID, assistantID string) (<-chan domain.StreamEvent, error) {
	resp, err := c.send(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/runs",
		&RunRequest{AssistantID: assistantID, Stream: true}, true, true)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	out := make(chan domain.StreamEvent)
	go readRunStream(ctx, resp.Body, out)
	return out, nil
}

// SubmitToolOutputs resumes a run waiting on tool results and streams its continuation
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/submit_tool_outputs"
	resp, err := c.send(ctx, http.MethodPost, path, &SubmitToolOutputsRequest{ToolOutputs: outputs, Stream: true}, true, true)
	if err != nil {
		return nil, fmt.Errorf("submit tool outputs: %w", err)
	}
	out := make(chan domain.StreamEvent)
	go readRunStream(ctx, resp.Body, out)
	return out, nil
}

// ThreadRunner binds the client to one assistant for the conversation relay
type ThreadRunner struct {
	client      *Client
	assistantID string
}

func NewThreadRunner(client *Client, assistantID string) *ThreadRunner {
	return &ThreadRunner{client: client, assistantID: assistantID}
}

// CreateThread creates a thread with one user message holding the call context
func (r *ThreadRunner) CreateThread(ctx context.Context, initialMessage string, metadata map[string]string) (string, error) {
	thread, err := r.client.CreateThread(ctx, &CreateThreadRequest{
		Messages: []ThreadMessageInput{{Role: "user", Content: initialMessage}},
		Metadata: metadata,
	})
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

// AddUserMessage appends the caller's utterance
func (r *ThreadRunner) AddUserMessage(ctx context.Context, threadID, content string) error {
	_, err := r.client.CreateMessage(ctx, threadID, ThreadMessageInput{Role: "user", Content: content})
	return err
}

func (r *ThreadRunner) StreamRun(ctx context.Context, threadID string) (<-chan domain.StreamEvent, error) {
	return r.client.StreamRun(ctx, threadID, r.assistantID)
}

func (r *ThreadRunner) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
	return r.client.SubmitToolOutputs(ctx, threadID, runID, outputs)
}
