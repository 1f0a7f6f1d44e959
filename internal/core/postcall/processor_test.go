package postcall

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ClareAI/astra-call-relay/internal/core/event"
	"github.com/ClareAI/astra-call-relay/internal/core/model/openai"
	"github.com/ClareAI/astra-call-relay/internal/core/session"
	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{"name":"conversation_metrics","schema":{"type":"object"}}`

type fakeProvider struct {
	mu       sync.Mutex
	requests []*openai.ChatCompletionRequest
	replies  []string
	chatErr  error
}

func (f *fakeProvider) RetrieveThread(_ context.Context, id string) (*openai.Thread, error) {
	if id != "thread_1" {
		return nil, errors.New("no such thread")
	}
	return &openai.Thread{ID: id, Metadata: map[string]string{"userId": "u1", "sessionId": "abc"}}, nil
}

func (f *fakeProvider) ListMessages(_ context.Context, _ string, limit int) (*openai.MessageList, error) {
	if limit != 100 {
		return nil, errors.New("unexpected limit")
	}
	return &openai.MessageList{Data: []openai.Message{
		{ID: "m2", Role: "assistant", Content: []openai.MessageContent{{Type: "text", Text: &openai.MessageText{Value: "Booked for Monday."}}}},
		{ID: "m1", Role: "user", Content: []openai.MessageContent{{Type: "text", Text: &openai.MessageText{Value: "book a checkup"}}}},
	}}, nil
}

func (f *fakeProvider) RetrieveAssistant(context.Context, string) (*openai.Assistant, error) {
	return &openai.Assistant{ID: "asst_1", Instructions: "You are a pet care assistant."}, nil
}

func (f *fakeProvider) CreateChatCompletion(_ context.Context, req *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return &openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: "assistant", Content: reply}}}}, nil
}

type capturedEvent struct {
	userID string
	name   string
	props  domain.JSONB
}

type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (s *captureSink) Track(_ context.Context, userID, name string, props domain.JSONB) (*event.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, capturedEvent{userID, name, props})
	return &event.Ack{UserID: userID, Event: name, Properties: props}, nil
}

func (s *captureSink) Close() error { return nil }

func writeAssets(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "prompts"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "schemas"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", hallucinationPrompt), []byte("check hallucinations"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", qualityPrompt), []byte("grade quality"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schemas", qualitySchema), []byte(testSchema), 0o644))
	return dir
}

func newStore(t *testing.T) session.Store {
	t.Helper()
	store := session.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), session.Key("abc"), session.Record{Thread: "thread_1"}))
	return store
}

func TestProcessTracksCompletedCall(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		`{"hallucination_detected":false,"hallucination_count":0}`,
		`{"goal_achieved":true,"summary":"booked"}`,
	}}
	sink := &captureSink{}
	p := NewProcessor(provider, newStore(t), sink, "asst_1", "gpt-4o", writeAssets(t))

	require.NoError(t, p.Process(context.Background(), Request{SessionID: "abc", Duration: "42"}))

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, "u1", ev.userID)
	assert.Equal(t, event.OutboundCallCompleted, ev.name)
	assert.Equal(t, 42, ev.props["conversation_duration"])
	assert.Equal(t, false, ev.props["hallucination_detected"])
	assert.Equal(t, true, ev.props["goal_achieved"])
	assert.Equal(t, "booked", ev.props["summary"])

	require.Len(t, provider.requests, 2)
	hallucination := provider.requests[0]
	assert.Equal(t, "gpt-4o", hallucination.Model)
	assert.Equal(t, 0.7, hallucination.Temperature)
	assert.Equal(t, 10000, hallucination.MaxTokens)
	assert.Equal(t, "json_object", hallucination.ResponseFormat.Type)
	require.Len(t, hallucination.Messages, 2)
	assert.Equal(t, "check hallucinations", hallucination.Messages[0].Content)
	assert.JSONEq(t, `[
		{"role":"assistant","content":[{"type":"text","text":{"value":"Booked for Monday."}}]},
		{"role":"user","content":[{"type":"text","text":{"value":"book a checkup"}}]}
	]`, hallucination.Messages[1].Content)

	quality := provider.requests[1]
	assert.Equal(t, 0.1, quality.Temperature)
	assert.Equal(t, "json_schema", quality.ResponseFormat.Type)
	assert.JSONEq(t, testSchema, string(quality.ResponseFormat.JSONSchema))
	require.Len(t, quality.Messages, 3)
	assert.Equal(t, "You are a pet care assistant.", quality.Messages[1].Content)
}

func TestProcessUnknownSession(t *testing.T) {
	sink := &captureSink{}
	p := NewProcessor(&fakeProvider{}, session.NewMemoryStore(), sink, "asst_1", "gpt-4o", writeAssets(t))

	err := p.Process(context.Background(), Request{SessionID: "missing"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Empty(t, sink.events)
}

func TestProcessReportsDespiteGraderFailure(t *testing.T) {
	provider := &fakeProvider{chatErr: errors.New("rate limited")}
	sink := &captureSink{}
	p := NewProcessor(provider, newStore(t), sink, "asst_1", "gpt-4o", writeAssets(t))

	p.Submit(context.Background(), Request{SessionID: "abc", Duration: "n/a"})
	p.Wait()

	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.JSONB{"conversation_duration": "n/a"}, sink.events[0].props)
}
