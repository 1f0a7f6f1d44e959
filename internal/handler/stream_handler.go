package handler

import (
	"errors"
	"net/http"

	"github.com/ClareAI/astra-call-relay/internal/adapters/ws"
	"github.com/ClareAI/astra-call-relay/internal/core/orchestrator"
	"github.com/ClareAI/astra-call-relay/internal/core/relay"
	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamHandler accepts telephony websockets for both call modes
type StreamHandler struct {
	upgrader     websocket.Upgrader
	calls        *callRegistry
	dialer       relay.Dialer
	relayOptions relay.Options
	orchDeps     orchestrator.Deps
}

func NewStreamHandler(calls *callRegistry, dialer relay.Dialer, relayOptions relay.Options, orchDeps orchestrator.Deps) *StreamHandler {
	return &StreamHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Twilio connects server to server without an Origin header
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		calls:        calls,
		dialer:       dialer,
		relayOptions: relayOptions,
		orchDeps:     orchDeps,
	}
}

// accept upgrades the request and registers the call. It returns nil if the call was refused.
func (h *StreamHandler) accept(w http.ResponseWriter, r *http.Request, mode domain.CallMode) (*domain.Call, *ws.Conn) {
	if h.calls.Full() {
		logger.Base().Warn("connection limit reached, refusing call", zap.String("mode", string(mode)))
		http.Error(w, "Too many active calls", http.StatusServiceUnavailable)
		return nil, nil
	}

	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Base().Error("websocket upgrade failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, nil
	}
	conn := ws.Wrap(c)

	call := domain.NewCall(mode)
	if !h.calls.Add(call.ID, conn) {
		logger.Base().Warn("connection limit reached after upgrade", zap.String("call_id", call.ID))
		conn.Close()
		return nil, nil
	}
	call.SetState(domain.TransportOpen)
	logger.Base().Info("Client connected", zap.String("call_id", call.ID), zap.String("mode", string(mode)))
	return call, conn
}

func (h *StreamHandler) release(call *domain.Call, conn *ws.Conn) {
	call.SetState(domain.TransportClosed)
	h.calls.Remove(call.ID)
	conn.Close()
}

// MediaStream relays raw call audio to the realtime model
func (h *StreamHandler) MediaStream(w http.ResponseWriter, r *http.Request) {
	call, conn := h.accept(w, r, domain.CallModeRawAudio)
	if call == nil {
		return
	}
	defer h.release(call, conn)

	rl := relay.New(r.Context(), call, conn, h.dialer, h.relayOptions)
	rl.Start()
	defer rl.Close()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			logReadEnd(call, err)
			return
		}
		rl.HandleTelephony(data)
	}
}

// ConversationRelay drives a tool-using assistant from transcribed caller prompts
func (h *StreamHandler) ConversationRelay(w http.ResponseWriter, r *http.Request) {
	call, conn := h.accept(w, r, domain.CallModeToolAgent)
	if call == nil {
		return
	}
	defer h.release(call, conn)

	orch := orchestrator.New(r.Context(), call, conn, h.orchDeps)
	defer orch.Close()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			logReadEnd(call, err)
			return
		}

		err = orch.Handle(data)
		switch {
		case err == nil:
		case errors.Is(err, orchestrator.ErrThreadCreation), errors.Is(err, orchestrator.ErrMalformedMessage):
			logger.Base().Error("Closing conversation relay", zap.String("call_id", call.ID), zap.Error(err))
			return
		default:
			logger.Base().Debug("Relay message rejected", zap.String("call_id", call.ID), zap.Error(err))
		}
	}
}

func logReadEnd(call *domain.Call, err error) {
	if ws.IsNormalClose(err) || call.State() == domain.TransportClosed {
		logger.Base().Info("Client disconnected", zap.String("call_id", call.ID))
		return
	}
	logger.Base().Warn("Telephony connection closed", zap.String("call_id", call.ID), zap.Error(err))
}
