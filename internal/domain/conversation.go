package domain

import (
	"sync"
	"time"
)

// TurnStatus is the lifecycle state of a Turn
type TurnStatus string

const (
	TurnIdle               TurnStatus = "idle"
	TurnStreaming          TurnStatus = "streaming"
	TurnAwaitingToolResult TurnStatus = "awaiting_tool_result"
	TurnCompleted          TurnStatus = "completed"
	TurnFailed             TurnStatus = "failed"
)

// Terminal reports whether a new turn may start after this status
func (s TurnStatus) Terminal() bool {
	switch s {
	case TurnIdle, TurnCompleted, TurnFailed:
		return true
	}
	return false
}

// Turn is one user utterance and the model's streamed reply
type Turn struct {
	ID        int
	Prompt    string
	StartedAt time.Time

	mu     sync.Mutex
	runID  string
	status TurnStatus
}

func (t *Turn) RunID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runID
}

// SetRunID captures the run id the first time the provider reports one
func (t *Turn) SetRunID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runID == "" {
		t.runID = id
	}
}

func (t *Turn) Status() TurnStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Turn) setStatus(s TurnStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// ConversationThread is the provider side conversation backing a ToolAgent call.
// Turn admission is serialized on the thread: at most one turn is non-terminal.
type ConversationThread struct {
	ThreadID         string
	SessionID        string
	Metadata         map[string]string
	CustomParameters JSONB

	mu      sync.Mutex
	current *Turn
	turns   int
}

// NewConversationThread wraps a created provider thread. Parameters are copied.
func NewConversationThread(threadID, sessionID string, metadata map[string]string, params JSONB) *ConversationThread {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return &ConversationThread{
		ThreadID:         threadID,
		SessionID:        sessionID,
		Metadata:         md,
		CustomParameters: params.DeepClone(),
	}
}

// UserID returns the end user the thread is tagged with
func (c *ConversationThread) UserID() string {
	return c.Metadata["userId"]
}

// BeginTurn starts a new streaming turn unless one is already in flight.
func (c *ConversationThread) BeginTurn(prompt string) (*Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && !c.current.Status().Terminal() {
		return nil, false
	}
	c.turns++
	c.current = &Turn{ID: c.turns, Prompt: prompt, StartedAt: time.Now(), status: TurnStreaming}
	return c.current, true
}

// Transition sets the status of t if it is still the thread's current turn.
func (c *ConversationThread) Transition(t *Turn, s TurnStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != t {
		return false
	}
	t.setStatus(s)
	return true
}

// CurrentTurn returns the most recent turn, or nil before the first prompt
func (c *ConversationThread) CurrentTurn() *Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// ToolInvocation is a model request to run a named side effect
type ToolInvocation struct {
	CallID    string
	ToolName  string
	Arguments JSONB
	RawArgs   string
}

// ToolOutput correlates a tool result with its invocation
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}
