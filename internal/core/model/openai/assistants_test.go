package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("sk-test", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
}

func TestCreateThreadSendsMetadata(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/threads", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))

		var req CreateThreadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abc", req.Metadata["sessionId"])
		assert.Equal(t, "u1", req.Metadata["userId"])
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.JSONEq(t, `{"user_id":"u1"}`, req.Messages[0].Content)

		_, _ = io.WriteString(w, `{"id":"thread_1","object":"thread","metadata":{"sessionId":"abc","userId":"u1"}}`)
	})

	runner := NewThreadRunner(client, "asst_1")
	id, err := runner.CreateThread(context.Background(), `{"user_id":"u1"}`, map[string]string{"sessionId": "abc", "userId": "u1"})

	require.NoError(t, err)
	assert.Equal(t, "thread_1", id)
}

func TestAPIErrorIsParsed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Can't add messages while a run is active.","type":"invalid_request_error"}}`)
	})

	_, err := client.CreateMessage(context.Background(), "thread_1", ThreadMessageInput{Role: "user", Content: "hi"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
	assert.Contains(t, apiErr.Error(), "run is active")
}

func TestStreamRunAndSubmitToolOutputs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		switch r.URL.Path {
		case "/threads/thread_1/runs":
			var req RunRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "asst_1", req.AssistantID)
			assert.True(t, req.Stream)
			_, _ = io.WriteString(w, "event: thread.run.step.created\ndata: {\"run_id\":\"run_1\"}\n\nevent: done\ndata: [DONE]\n\n")
		case "/threads/thread_1/runs/run_1/submit_tool_outputs":
			var req SubmitToolOutputsRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.Stream)
			assert.Equal(t, []domain.ToolOutput{{ToolCallID: "call_1", Output: `{"ok":true}`}}, req.ToolOutputs)
			_, _ = io.WriteString(w, "event: thread.run.completed\ndata: {\"id\":\"run_1\"}\n\ndata: [DONE]\n\n")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	runner := NewThreadRunner(client, "asst_1")

	stream, err := runner.StreamRun(context.Background(), "thread_1")
	require.NoError(t, err)
	ev := <-stream
	assert.Equal(t, domain.StreamRunStepCreated, ev.Type)
	assert.Equal(t, "run_1", ev.RunID)
	_, open := <-stream
	assert.False(t, open)

	stream, err = runner.SubmitToolOutputs(context.Background(), "thread_1", "run_1", []domain.ToolOutput{{ToolCallID: "call_1", Output: `{"ok":true}`}})
	require.NoError(t, err)
	ev = <-stream
	assert.Equal(t, domain.StreamRunCompleted, ev.Type)
}

func TestListMessagesAndChatCompletion(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/threads/thread_1/messages":
			assert.Equal(t, "100", r.URL.Query().Get("limit"))
			_, _ = io.WriteString(w, `{"data":[{"id":"m1","role":"assistant","content":[{"type":"text","text":{"value":"Hi there"}}]}]}`)
		case "/chat/completions":
			assert.Empty(t, r.Header.Get("OpenAI-Beta"))
			var req ChatCompletionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "json_object", req.ResponseFormat.Type)
			_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"score\":1}"}}]}`)
		}
	})

	list, err := client.ListMessages(context.Background(), "thread_1", 100)
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Hi there", list.Data[0].Text())

	resp, err := client.CreateChatCompletion(context.Background(), &ChatCompletionRequest{
		Model:          "gpt-4o",
		Messages:       []ChatMessage{{Role: "user", Content: "x"}},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	require.NoError(t, err)
	content, err := resp.FirstContent()
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":1}`, content)
}
