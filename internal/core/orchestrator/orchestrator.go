package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ClareAI/astra-call-relay/internal/config"
	"github.com/ClareAI/astra-call-relay/internal/core/event"
	"github.com/ClareAI/astra-call-relay/internal/core/session"
	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"go.uber.org/zap"
)

// Assistant is the provider side of a ToolAgent call
type Assistant interface {
	CreateThread(ctx context.Context, initialMessage string, metadata map[string]string) (string, error)
	AddUserMessage(ctx context.Context, threadID, content string) error
	StreamRun(ctx context.Context, threadID string) (<-chan domain.StreamEvent, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (<-chan domain.StreamEvent, error)
}

// Dispatcher resolves tool invocations. ok is false when nothing should be submitted.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv *domain.ToolInvocation) (output string, ok bool)
}

// Sender writes frames to the telephony connection
type Sender interface {
	WriteJSON(v interface{}) error
}

// Deps are the collaborators shared by every call
type Deps struct {
	Assistant   Assistant
	Tools       Dispatcher
	Store       session.Store
	Sink        event.Sink
	TurnTimeout time.Duration
}

// Orchestrator drives one ToolAgent call: setup, then one turn at a time.
// Handle is called from the connection read loop; turns stream on their own goroutine.
type Orchestrator struct {
	call   *domain.Call
	sender Sender
	deps   Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	setupSeen bool
	thread    *domain.ConversationThread
	threadCtx context.Context
}

// New creates the orchestrator for call. Closing it cancels every in-flight turn.
func New(ctx context.Context, call *domain.Call, sender Sender, deps Deps) *Orchestrator {
	if deps.TurnTimeout <= 0 {
		deps.TurnTimeout = config.DefaultTurnTimeout
	}
	ctx, cancel := context.WithCancel(logger.WithCall(ctx, call.ID, string(call.Mode)))
	return &Orchestrator{
		call:   call,
		sender: sender,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handle processes one inbound frame. Only ErrThreadCreation and ErrMalformedMessage
// should end the call; every other error is informational.
func (o *Orchestrator) Handle(raw []byte) error {
	msg, err := parseInbound(raw)
	if err != nil {
		return err
	}

	switch msg.Type {
	case MessageTypeSetup:
		return o.setup(msg)
	case MessageTypePrompt:
		return o.prompt(msg.VoicePrompt)
	default:
		logger.Debug(o.ctx, "Ignoring relay message", zap.String("event_type", msg.Type))
		return nil
	}
}

// Thread returns the conversation thread once setup has completed
func (o *Orchestrator) Thread() *domain.ConversationThread {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.thread
}

func (o *Orchestrator) setup(msg *InboundMessage) error {
	o.mu.Lock()
	if o.setupSeen {
		o.mu.Unlock()
		logger.Warn(o.ctx, "Duplicate setup ignored", zap.String("session_id", msg.SessionID))
		return ErrAlreadySetup
	}
	o.setupSeen = true
	o.mu.Unlock()

	params := msg.CustomParameters.Clone()
	metadata := map[string]string{
		"sessionId": msg.SessionID,
		"userId":    params.Text("user_id"),
	}

	threadID, err := o.deps.Assistant.CreateThread(o.ctx, domain.MustJSON(params), metadata)
	if err != nil {
		logger.Error(o.ctx, "Failed to create thread", zap.String("session_id", msg.SessionID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrThreadCreation, err)
	}

	thread := domain.NewConversationThread(threadID, msg.SessionID, metadata, params)
	threadCtx := logger.WithFields(o.ctx, zap.String("session_id", msg.SessionID), zap.String("thread_id", threadID))

	o.mu.Lock()
	o.thread = thread
	o.threadCtx = threadCtx
	o.mu.Unlock()

	if err := o.deps.Store.Put(threadCtx, session.Key(msg.SessionID), session.Record{Thread: threadID}); err != nil {
		logger.Error(threadCtx, "Failed to persist session", zap.Error(err))
	}

	o.track(threadCtx, thread.UserID(), event.OutboundCallAnswered, domain.JSONB{"reason": params["reason"]})
	logger.Info(threadCtx, "Conversation thread created")
	return nil
}

func (o *Orchestrator) prompt(text string) error {
	o.mu.Lock()
	thread, ctx := o.thread, o.threadCtx
	o.mu.Unlock()

	if thread == nil {
		logger.Warn(o.ctx, "Prompt received before setup")
		if err := o.sender.WriteJSON(ErrorMessage{Type: "error", Message: threadNotInitializedMessage}); err != nil {
			logger.Debug(o.ctx, "Failed to send error message", zap.Error(err))
		}
		return ErrThreadNotInitialized
	}

	turn, ok := thread.BeginTurn(text)
	if !ok {
		logger.Info(ctx, "Prompt dropped while a turn is in progress")
		return ErrTurnInProgress
	}

	o.wg.Add(1)
	go o.runTurn(ctx, thread, turn)
	return nil
}

func (o *Orchestrator) runTurn(ctx context.Context, thread *domain.ConversationThread, turn *domain.Turn) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(logger.WithFields(ctx, zap.Int("turn", turn.ID)), o.deps.TurnTimeout)
	defer cancel()

	if err := o.deps.Assistant.AddUserMessage(ctx, thread.ThreadID, turn.Prompt); err != nil {
		o.fail(ctx, thread, turn, fmt.Errorf("add user message: %w", err))
		return
	}

	stream, err := o.deps.Assistant.StreamRun(ctx, thread.ThreadID)
	if err != nil {
		o.fail(ctx, thread, turn, fmt.Errorf("start run: %w", err))
		return
	}
	o.track(ctx, thread.UserID(), event.MessageReceived, domain.JSONB{"body": turn.Prompt})

	o.consume(ctx, thread, turn, stream)
}

// consume applies stream events in arrival order until the turn reaches a terminal state
func (o *Orchestrator) consume(ctx context.Context, thread *domain.ConversationThread, turn *domain.Turn, stream <-chan domain.StreamEvent) {
	var pending []domain.ToolOutput
	segmentOpen := false

	for {
		var ev domain.StreamEvent
		var ok bool
		select {
		case <-ctx.Done():
			o.fail(ctx, thread, turn, fmt.Errorf("turn aborted: %w", ctx.Err()))
			return
		case ev, ok = <-stream:
		}
		if !ok {
			if !turn.Status().Terminal() {
				o.fail(ctx, thread, turn, errors.New("run stream ended before completion"))
			}
			return
		}
		if ev.RunID != "" {
			turn.SetRunID(ev.RunID)
		}

		switch ev.Type {
		case domain.StreamRunStepCreated:
			logger.Debug(ctx, "Run step created", zap.String("run_id", turn.RunID()))

		case domain.StreamTextDelta:
			o.send(ctx, newToken(ev.Text, false))
			segmentOpen = true

		case domain.StreamTextDone:
			o.send(ctx, newToken("", true))
			segmentOpen = false
			thread.Transition(turn, domain.TurnCompleted)
			o.track(ctx, thread.UserID(), event.AssistantInteractionSent, domain.JSONB{"body": ev.Text})

		case domain.StreamToolCallDone:
			if ev.ToolCall == nil {
				continue
			}
			thread.Transition(turn, domain.TurnAwaitingToolResult)
			output, ok, err := o.dispatch(ctx, ev.ToolCall)
			if err != nil {
				o.fail(ctx, thread, turn, err)
				return
			}
			if ok {
				pending = append(pending, domain.ToolOutput{ToolCallID: ev.ToolCall.CallID, Output: output})
			}

		case domain.StreamRequiresAction:
			if len(pending) == 0 {
				logger.Warn(ctx, "Run requires action but no tool produced output", zap.String("run_id", turn.RunID()))
				continue
			}
			next, err := o.deps.Assistant.SubmitToolOutputs(ctx, thread.ThreadID, turn.RunID(), pending)
			if err != nil {
				o.fail(ctx, thread, turn, fmt.Errorf("submit tool outputs: %w", err))
				return
			}
			logger.Info(ctx, "Submitted tool outputs", zap.String("run_id", turn.RunID()), zap.Int("count", len(pending)))
			pending = nil
			thread.Transition(turn, domain.TurnStreaming)
			stream = next

		case domain.StreamRunCompleted:
			if segmentOpen {
				o.send(ctx, newToken("", true))
			}
			thread.Transition(turn, domain.TurnCompleted)
			logger.Debug(ctx, "Run completed", zap.String("run_id", turn.RunID()))
			return

		case domain.StreamRunFailed, domain.StreamError:
			if segmentOpen {
				o.send(ctx, newToken("", true))
			}
			err := ev.Err
			if err == nil {
				err = errors.New(string(ev.Type))
			}
			o.fail(ctx, thread, turn, err)
			return
		}
	}
}

// dispatch runs the tool on a detached context so a closing call cannot interrupt a side effect.
// The result is discarded if the turn ends first.
func (o *Orchestrator) dispatch(ctx context.Context, inv *domain.ToolInvocation) (string, bool, error) {
	type result struct {
		output string
		ok     bool
	}
	done := make(chan result, 1)
	go func() {
		out, ok := o.deps.Tools.Dispatch(context.WithoutCancel(ctx), inv)
		done <- result{out, ok}
	}()

	select {
	case r := <-done:
		return r.output, r.ok, nil
	case <-ctx.Done():
		logger.Warn(ctx, "Discarding tool result", zap.String("tool", inv.ToolName), zap.String("tool_call_id", inv.CallID))
		return "", false, fmt.Errorf("tool %s: %w", inv.ToolName, ctx.Err())
	}
}

func (o *Orchestrator) fail(ctx context.Context, thread *domain.ConversationThread, turn *domain.Turn, err error) {
	if thread.Transition(turn, domain.TurnFailed) {
		logger.Error(ctx, "Turn failed", zap.String("run_id", turn.RunID()), zap.Error(err))
	}
}

func (o *Orchestrator) send(ctx context.Context, v interface{}) {
	if err := o.sender.WriteJSON(v); err != nil {
		logger.Debug(ctx, "Failed to write to relay", zap.Error(err))
	}
}

func (o *Orchestrator) track(ctx context.Context, userID, name string, props domain.JSONB) {
	if _, err := o.deps.Sink.Track(ctx, userID, name, props); err != nil {
		logger.Warn(ctx, "Failed to track event", zap.String("event", name), zap.Error(err))
	}
}

// Close cancels in-flight turns and waits for their goroutines to exit
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}
