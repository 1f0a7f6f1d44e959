package domain

// StreamEventType enumerates what an assistant run stream can yield
type StreamEventType string

const (
	StreamRunStepCreated StreamEventType = "run_step_created"
	StreamTextDelta      StreamEventType = "text_delta"
	StreamTextDone       StreamEventType = "text_done"
	StreamToolCallDone   StreamEventType = "tool_call_done"
	StreamRequiresAction StreamEventType = "requires_action"
	StreamRunCompleted   StreamEventType = "run_completed"
	StreamRunFailed      StreamEventType = "run_failed"
	StreamError          StreamEventType = "error"
)

// StreamEvent is one typed event of a run stream. A stream is consumed once, in order.
type StreamEvent struct {
	Type     StreamEventType
	RunID    string
	Text     string
	ToolCall *ToolInvocation
	Err      error
}
