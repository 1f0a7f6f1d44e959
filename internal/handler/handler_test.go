package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ClareAI/astra-call-relay/internal/adapters/ws"
	"github.com/ClareAI/astra-call-relay/internal/config"
	"github.com/ClareAI/astra-call-relay/internal/core/event"
	"github.com/ClareAI/astra-call-relay/internal/core/postcall"
	"github.com/ClareAI/astra-call-relay/internal/core/session"
	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedAssistant struct{}

func (scriptedAssistant) CreateThread(context.Context, string, map[string]string) (string, error) {
	return "thread_1", nil
}

func (scriptedAssistant) AddUserMessage(context.Context, string, string) error { return nil }

func (scriptedAssistant) StreamRun(context.Context, string) (<-chan domain.StreamEvent, error) {
	ch := make(chan domain.StreamEvent, 4)
	ch <- domain.StreamEvent{Type: domain.StreamRunStepCreated, RunID: "run_1"}
	ch <- domain.StreamEvent{Type: domain.StreamTextDelta, Text: "Hello"}
	ch <- domain.StreamEvent{Type: domain.StreamTextDone, Text: "Hello"}
	ch <- domain.StreamEvent{Type: domain.StreamRunCompleted}
	close(ch)
	return ch, nil
}

func (scriptedAssistant) SubmitToolOutputs(context.Context, string, string, []domain.ToolOutput) (<-chan domain.StreamEvent, error) {
	return nil, errors.New("not expected")
}

type refusingDialer struct{}

func (refusingDialer) Dial(context.Context) (*ws.Conn, error) {
	return nil, errors.New("provider unavailable")
}

func testConfig() *config.Config {
	return &config.Config{
		MaxConnections:     10,
		Voice:              config.DefaultVoice,
		Temperature:        config.DefaultTemperature,
		SessionUpdateDelay: time.Millisecond,
		TurnTimeout:        time.Second,
		StudioFlowURL:      "https://webhooks.twilio.com/v1/Accounts/AC123/Flows/FW123",
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, store session.Store) (*mux.Router, *HandlerManager) {
	t.Helper()
	hm := NewHandlerManagerWithDeps(cfg, Dependencies{
		Store:     store,
		Sink:      event.LogSink{},
		Assistant: scriptedAssistant{},
		Dialer:    refusingDialer{},
	})
	router := mux.NewRouter()
	hm.SetupAllRoutes(router)
	return router, hm
}

func TestRootAndHealthz(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), session.NewMemoryStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Twilio Media Stream Server is running!"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","active_calls":0}`, rec.Body.String())
}

func TestToolCatalog(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), session.NewMemoryStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tools []struct {
			Type     string `json:"type"`
			Function struct {
				Name       string                 `json:"name"`
				Parameters map[string]interface{} `json:"parameters"`
			} `json:"function"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tools, 3)

	names := make([]string, 0, len(body.Tools))
	for _, tl := range body.Tools {
		assert.Equal(t, "function", tl.Type)
		assert.Equal(t, "object", tl.Function.Parameters["type"])
		names = append(names, tl.Function.Name)
	}
	assert.Equal(t, []string{"get_insurance_info", "insurance_quote", "schedule_vaccination"}, names)
}

type twimlDoc struct {
	XMLName xml.Name `xml:"Response"`
	Says    []string `xml:"Say"`
	Pause   struct {
		Length string `xml:"length,attr"`
	} `xml:"Pause"`
	Connect struct {
		Stream struct {
			URL string `xml:"url,attr"`
		} `xml:"Stream"`
	} `xml:"Connect"`
	Redirect string `xml:"Redirect"`
}

func TestIncomingCallTwiML(t *testing.T) {
	router, _ := newTestRouter(t, testConfig(), session.NewMemoryStore())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, "http://relay.example.com/incoming-call", nil)
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))

		var doc twimlDoc
		require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, []string{connectGreeting, startTalking}, doc.Says)
		assert.Equal(t, "1", doc.Pause.Length)
		assert.Equal(t, "wss://relay.example.com/media-stream", doc.Connect.Stream.URL)
	}
}

func TestIncomingCallDirect(t *testing.T) {
	cfg := testConfig()
	router, _ := newTestRouter(t, cfg, session.NewMemoryStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/incoming-call-direct", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc twimlDoc
	require.NoError(t, xml.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, cfg.StudioFlowURL, doc.Redirect)
}

// twilioSignature computes X-Twilio-Signature the way Twilio signs form posts
func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioSignatureValidation(t *testing.T) {
	cfg := testConfig()
	cfg.TwilioValidateSignature = true
	cfg.TwilioAuthToken = "test-auth-token"
	router, _ := newTestRouter(t, cfg, session.NewMemoryStore())

	form := url.Values{"CallSid": {"CA123"}, "From": {"+15551234567"}}
	newRequest := func(signature string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "http://relay.example.com/incoming-call", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if signature != "" {
			req.Header.Set("X-Twilio-Signature", signature)
		}
		return req
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newRequest(""))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, newRequest("bm90LWEtc2lnbmF0dXJl"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, newRequest(twilioSignature(cfg.TwilioAuthToken, "http://relay.example.com/incoming-call", form)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []postcall.Request
}

func (f *fakeSubmitter) Submit(_ context.Context, req postcall.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
}

func TestCallPostProcessing(t *testing.T) {
	jobs := &fakeSubmitter{}
	h := NewPostCallHandler(jobs)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/call-post-processing", strings.NewReader("SessionDuration=12"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.CallPostProcessing(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/call-post-processing", strings.NewReader("SessionId=abc&SessionDuration=12"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.CallPostProcessing(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []postcall.Request{{SessionID: "abc", Duration: "12"}}, jobs.reqs)
}

func dialRelay(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
}

func TestConversationRelayEndToEnd(t *testing.T) {
	store := session.NewMemoryStore()
	router, hm := newTestRouter(t, testConfig(), store)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := dialRelay(t, srv, "/conversation-relay")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "prompt", "voicePrompt": "too early"}))
	var errMsg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&errMsg))
	assert.Equal(t, map[string]interface{}{"type": "error", "message": "Thread not initialized."}, errMsg)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":             "setup",
		"sessionId":        "abc",
		"customParameters": map[string]interface{}{"user_id": "u1"},
	}))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "prompt", "voicePrompt": "hello"}))

	var tokens []map[string]interface{}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(tokens) < 2 {
		var tok map[string]interface{}
		require.NoError(t, conn.ReadJSON(&tok))
		tokens = append(tokens, tok)
	}
	assert.Equal(t, map[string]interface{}{"type": "text", "token": "Hello", "last": false}, tokens[0])
	assert.Equal(t, map[string]interface{}{"type": "text", "token": "", "last": true}, tokens[1])

	rec, err := store.Get(context.Background(), "session_abc")
	require.NoError(t, err)
	assert.Equal(t, "thread_1", rec.Thread)
	assert.Equal(t, 1, hm.ActiveCalls())
}

func TestConnectionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	router, hm := newTestRouter(t, cfg, session.NewMemoryStore())
	srv := httptest.NewServer(router)
	defer srv.Close()

	first, _, err := dialRelay(t, srv, "/media-stream")
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return hm.ActiveCalls() == 1 }, time.Second, 5*time.Millisecond)

	_, resp, err := dialRelay(t, srv, "/conversation-relay")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// media sent while the provider is unreachable is dropped without closing the call
	require.NoError(t, first.WriteJSON(map[string]interface{}{"event": "media", "media": map[string]string{"payload": "AAAA"}}))

	hm.Shutdown(context.Background())
	_ = first.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = first.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return hm.ActiveCalls() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHealthzCountsLiveCalls(t *testing.T) {
	router, hm := newTestRouter(t, testConfig(), session.NewMemoryStore())
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := dialRelay(t, srv, "/conversation-relay")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hm.ActiveCalls() == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(1), body["active_calls"])

	conn.Close()
	require.Eventually(t, func() bool { return hm.ActiveCalls() == 0 }, time.Second, 5*time.Millisecond)
}
