package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"go.uber.org/zap"
)

// Assistants stream event names
const (
	eventRunStepCreated   = "thread.run.step.created"
	eventMessageDelta     = "thread.message.delta"
	eventMessageCompleted = "thread.message.completed"
	eventRequiresAction   = "thread.run.requires_action"
	eventRunCompleted     = "thread.run.completed"
	eventRunFailed        = "thread.run.failed"
	eventRunCancelled     = "thread.run.cancelled"
	eventRunExpired       = "thread.run.expired"
	eventError            = "error"
	eventDone             = "done"
)

// readRunStream parses a server-sent event body into typed stream events.
// Unknown event names are skipped. The channel is closed when the body ends.
func readRunStream(ctx context.Context, body io.ReadCloser, out chan<- domain.StreamEvent) {
	defer close(out)
	defer body.Close()

	send := func(ev domain.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
			continue
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case !strings.HasPrefix(line, "data:"):
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" || event == eventDone {
			return
		}

		events, err := decodeRunEvent(event, []byte(data))
		if err != nil {
			logger.Base().Warn("Skipping malformed run stream event", zap.String("event_type", event), zap.Error(err))
			continue
		}
		for _, ev := range events {
			if !send(ev) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(domain.StreamEvent{Type: domain.StreamError, Err: fmt.Errorf("stream read error: %w", err)})
	}
}

// decodeRunEvent maps one SSE frame to zero or more stream events
func decodeRunEvent(event string, data []byte) ([]domain.StreamEvent, error) {
	switch event {
	case eventRunStepCreated:
		var step RunStep
		if err := json.Unmarshal(data, &step); err != nil {
			return nil, err
		}
		return []domain.StreamEvent{{Type: domain.StreamRunStepCreated, RunID: step.RunID}}, nil

	case eventMessageDelta:
		var delta MessageDelta
		if err := json.Unmarshal(data, &delta); err != nil {
			return nil, err
		}
		var events []domain.StreamEvent
		for _, c := range delta.Delta.Content {
			if c.Type == "text" && c.Text != nil {
				events = append(events, domain.StreamEvent{Type: domain.StreamTextDelta, Text: c.Text.Value})
			}
		}
		return events, nil

	case eventMessageCompleted:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return []domain.StreamEvent{{Type: domain.StreamTextDone, RunID: msg.RunID, Text: msg.Text()}}, nil

	case eventRequiresAction:
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, err
		}
		var events []domain.StreamEvent
		if run.RequiredAction != nil {
			for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
				if tc.Type != "" && tc.Type != "function" {
					continue
				}
				events = append(events, domain.StreamEvent{
					Type:  domain.StreamToolCallDone,
					RunID: run.ID,
					ToolCall: &domain.ToolInvocation{
						CallID:   tc.ID,
						ToolName: tc.Function.Name,
						RawArgs:  tc.Function.Arguments,
					},
				})
			}
		}
		return append(events, domain.StreamEvent{Type: domain.StreamRequiresAction, RunID: run.ID}), nil

	case eventRunCompleted:
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, err
		}
		return []domain.StreamEvent{{Type: domain.StreamRunCompleted, RunID: run.ID}}, nil

	case eventRunFailed, eventRunCancelled, eventRunExpired:
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, err
		}
		err := fmt.Errorf("run %s", strings.TrimPrefix(event, "thread.run."))
		if run.LastError != nil {
			err = fmt.Errorf("%w: %s: %s", err, run.LastError.Code, run.LastError.Message)
		}
		return []domain.StreamEvent{{Type: domain.StreamRunFailed, RunID: run.ID, Err: err}}, nil

	case eventError:
		var payload struct {
			Message string `json:"message"`
			Error   *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if err := json.Unmarshal(data, &payload); err == nil {
			if payload.Error != nil && payload.Error.Message != "" {
				msg = payload.Error.Message
			} else if payload.Message != "" {
				msg = payload.Message
			}
		}
		return []domain.StreamEvent{{Type: domain.StreamError, Err: errors.New(msg)}}, nil
	}
	return nil, nil
}
