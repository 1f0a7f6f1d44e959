package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ClareAI/astra-call-relay/internal/config"
	"github.com/ClareAI/astra-call-relay/internal/core/event"
	"github.com/ClareAI/astra-call-relay/internal/core/model/openai"
	"github.com/ClareAI/astra-call-relay/internal/core/orchestrator"
	"github.com/ClareAI/astra-call-relay/internal/core/postcall"
	"github.com/ClareAI/astra-call-relay/internal/core/relay"
	"github.com/ClareAI/astra-call-relay/internal/core/session"
	"github.com/ClareAI/astra-call-relay/internal/core/tool"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"github.com/ClareAI/astra-call-relay/pkg/redis"
	"github.com/ClareAI/astra-call-relay/pkg/twilio"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Dependencies are the external collaborators the handlers drive
type Dependencies struct {
	Store     session.Store
	Sink      event.Sink
	Assistant orchestrator.Assistant
	Dialer    relay.Dialer
	PostCall  *postcall.Processor
	// Closers are released on shutdown after the sink
	Closers []io.Closer
}

// HandlerManager manages all handlers and their initialization
type HandlerManager struct {
	config *config.Config
	deps   Dependencies
	calls  *callRegistry

	streamHandler   *StreamHandler
	twimlHandler    *TwiMLHandler
	postCallHandler *PostCallHandler
	healthHandler   *HealthHandler
	toolHandler     *ToolHandler
}

// NewHandlerManager creates the provider clients, session store and event sink from cfg
func NewHandlerManager(cfg *config.Config) (*HandlerManager, error) {
	deps := Dependencies{}

	store, closer, err := newSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	deps.Store = store
	if closer != nil {
		deps.Closers = append(deps.Closers, closer)
	}

	sink, err := newEventSink(cfg)
	if err != nil {
		return nil, err
	}
	deps.Sink = sink

	client := openai.NewClient(cfg.OpenAIAPIKey, openai.WithBaseURL(cfg.OpenAIBaseURL))
	deps.Assistant = openai.NewThreadRunner(client, cfg.AssistantID)
	deps.Dialer = openai.NewRealtimeDialer(cfg)
	deps.PostCall = postcall.NewProcessor(client, store, sink, cfg.AssistantID, cfg.QualityModel, cfg.PromptsDir)

	return NewHandlerManagerWithDeps(cfg, deps), nil
}

// NewHandlerManagerWithDeps wires handlers around already constructed collaborators
func NewHandlerManagerWithDeps(cfg *config.Config, deps Dependencies) *HandlerManager {
	calls := newCallRegistry(cfg.MaxConnections)

	tools := tool.NewToolManager(deps.Sink, tool.WithUnsupportedToolReply(cfg.UnsupportedToolReply))
	logger.Base().Info("Tool catalog ready", zap.Int("tools", len(tools.Definitions())), zap.String("endpoint", "/tools"))

	relayOptions := relay.Options{
		SessionUpdate:      openai.NewSessionUpdate(cfg),
		SessionUpdateDelay: cfg.SessionUpdateDelay,
	}
	orchDeps := orchestrator.Deps{
		Assistant:   deps.Assistant,
		Tools:       tools,
		Store:       deps.Store,
		Sink:        deps.Sink,
		TurnTimeout: cfg.TurnTimeout,
	}

	return &HandlerManager{
		config:          cfg,
		deps:            deps,
		calls:           calls,
		streamHandler:   NewStreamHandler(calls, deps.Dialer, relayOptions, orchDeps),
		twimlHandler:    NewTwiMLHandler(cfg.StudioFlowURL),
		postCallHandler: NewPostCallHandler(deps.PostCall),
		healthHandler:   &HealthHandler{calls: calls},
		toolHandler:     NewToolHandler(tools),
	}
}

func newSessionStore(cfg *config.Config) (session.Store, io.Closer, error) {
	switch cfg.SessionStore {
	case config.SessionStoreSync:
		docs, err := twilio.NewSyncDocumentService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioSyncServiceSID)
		if err != nil {
			return nil, nil, fmt.Errorf("twilio sync: %w", err)
		}
		logger.Base().Info("session store initialized", zap.String("type", "twilio_sync"))
		return session.NewSyncStore(docs), nil, nil
	case config.SessionStoreRedis:
		svc, err := redis.NewRedisService(&redis.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		logger.Base().Info("session store initialized", zap.String("type", "redis"), zap.Duration("ttl", cfg.SessionTTL))
		return session.NewRedisStore(svc, cfg.SessionTTL), svc, nil
	default:
		logger.Base().Warn("using in-memory session store, post-call processing only sees calls handled by this instance")
		return session.NewMemoryStore(), nil, nil
	}
}

func newEventSink(cfg *config.Config) (event.Sink, error) {
	var sink event.Sink = event.LogSink{}
	if cfg.SegmentWriteKey != "" {
		segment, err := event.NewSegmentSink(cfg.SegmentWriteKey)
		if err != nil {
			return nil, fmt.Errorf("segment: %w", err)
		}
		sink = segment
		logger.Base().Info("event sink initialized", zap.String("type", "segment"))
	} else {
		logger.Base().Warn("SEGMENT_WRITE_KEY not set, events are only logged")
	}
	return event.Chain(sink, event.RecoveryMiddleware, event.LoggingMiddleware), nil
}

// SetupAllRoutes sets up all routes for the service
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(RecoveryMiddleware)
	router.Use(GlobalLoggingMiddleware)

	router.HandleFunc("/", hm.healthHandler.Root).Methods(http.MethodGet)
	router.HandleFunc("/healthz", hm.healthHandler.Healthz).Methods(http.MethodGet)
	router.HandleFunc("/tools", hm.toolHandler.List).Methods(http.MethodGet)

	hm.SetupWebhookRoutes(router)
	hm.SetupStreamRoutes(router)
}

// SetupWebhookRoutes registers the Twilio voice and conversation relay callbacks
func (hm *HandlerManager) SetupWebhookRoutes(router *mux.Router) {
	router.Handle("/incoming-call", hm.webhook(hm.twimlHandler.IncomingCall))
	router.Handle("/incoming-call-direct", hm.webhook(hm.twimlHandler.IncomingCallDirect))
	if hm.deps.PostCall != nil {
		router.Handle("/call-post-processing", hm.webhook(hm.postCallHandler.CallPostProcessing)).Methods(http.MethodPost)
	}
}

// webhook applies Twilio signature validation when it is enabled
func (hm *HandlerManager) webhook(h http.HandlerFunc) http.Handler {
	if !hm.config.TwilioValidateSignature {
		return h
	}
	return TwilioSignatureMiddleware(hm.config.TwilioAuthToken, hm.config.PublicBaseURL)(h)
}

// SetupStreamRoutes registers the telephony websocket endpoints
func (hm *HandlerManager) SetupStreamRoutes(router *mux.Router) {
	router.HandleFunc("/media-stream", hm.streamHandler.MediaStream).Methods(http.MethodGet)
	router.HandleFunc("/conversation-relay", hm.streamHandler.ConversationRelay).Methods(http.MethodGet)
}

// ActiveCalls returns the number of live telephony connections
func (hm *HandlerManager) ActiveCalls() int {
	return hm.calls.Count()
}

// Shutdown closes live calls, waits for post-call jobs and flushes the event sink
func (hm *HandlerManager) Shutdown(ctx context.Context) {
	hm.calls.CloseAll()

	if hm.deps.PostCall != nil {
		done := make(chan struct{})
		go func() {
			hm.deps.PostCall.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			logger.Base().Warn("post-call jobs still running at shutdown")
		}
	}

	if err := hm.deps.Sink.Close(); err != nil {
		logger.Base().Error("failed to flush event sink", zap.Error(err))
	}
	for _, c := range hm.deps.Closers {
		if err := c.Close(); err != nil {
			logger.Base().Error("failed to close dependency", zap.Error(err))
		}
	}
}
