package relay

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClareAI/astra-call-relay/internal/adapters/ws"
	"github.com/ClareAI/astra-call-relay/internal/config"
	"github.com/ClareAI/astra-call-relay/internal/core/model/openai"
	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"go.uber.org/zap"
)

// Dialer opens the provider realtime connection
type Dialer interface {
	Dial(ctx context.Context) (*ws.Conn, error)
}

// Sender writes frames to the telephony connection
type Sender interface {
	WriteJSON(v interface{}) error
}

// Options tune the provider session
type Options struct {
	SessionUpdate      openai.SessionUpdate
	SessionUpdateDelay time.Duration
}

// Relay pipes one telephony media stream to a realtime model connection.
// Caller audio is dropped, never buffered, until the provider socket is open.
type Relay struct {
	call      *domain.Call
	telephony Sender
	dialer    Dialer
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	open     atomic.Bool
	mu       sync.Mutex
	provider *ws.Conn
	timer    *time.Timer
}

func New(ctx context.Context, call *domain.Call, telephony Sender, dialer Dialer, opts Options) *Relay {
	if opts.SessionUpdateDelay < 0 {
		opts.SessionUpdateDelay = config.DefaultSessionUpdateDelay
	}
	ctx, cancel := context.WithCancel(logger.WithCall(ctx, call.ID, string(call.Mode)))
	return &Relay{
		call:      call,
		telephony: telephony,
		dialer:    dialer,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start dials the provider in the background
func (r *Relay) Start() {
	r.wg.Add(1)
	go r.connect()
}

func (r *Relay) connect() {
	defer r.wg.Done()

	conn, err := r.dialer.Dial(r.ctx)
	if err != nil {
		logger.Error(r.ctx, "Failed to connect to the realtime provider", zap.Error(err))
		return
	}

	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	r.provider = conn
	r.open.Store(true)
	r.timer = time.AfterFunc(r.opts.SessionUpdateDelay, r.sendSessionUpdate)
	r.mu.Unlock()

	r.readProvider(conn)
}

func (r *Relay) sendSessionUpdate() {
	r.mu.Lock()
	conn := r.provider
	r.mu.Unlock()
	if conn == nil || !r.open.Load() {
		return
	}
	logger.Info(r.ctx, "Sending session update")
	if err := conn.WriteJSON(r.opts.SessionUpdate); err != nil {
		logger.Error(r.ctx, "Failed to send session update", zap.Error(err))
	}
}

func (r *Relay) readProvider(conn *ws.Conn) {
	defer func() {
		r.open.Store(false)
		_ = conn.Close()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ws.IsNormalClose(err) || r.ctx.Err() != nil || !conn.IsOpen() {
				logger.Info(r.ctx, "Disconnected from the realtime provider")
			} else {
				logger.Error(r.ctx, "Realtime provider connection error", zap.Error(err))
			}
			return
		}
		r.handleProviderEvent(data)
	}
}

func (r *Relay) handleProviderEvent(data []byte) {
	ev, err := openai.ParseServerEvent(data)
	if err != nil {
		logger.Warn(r.ctx, "Error processing realtime message", zap.Error(err))
		return
	}

	switch {
	case ev.Type == openai.EventResponseAudioDelta:
		if ev.Delta == "" {
			return
		}
		if err := r.telephony.WriteJSON(newMediaMessage(r.call.StreamID(), ev.Delta)); err != nil {
			logger.Debug(r.ctx, "Failed to forward audio to telephony", zap.Error(err))
		}
	case ev.Type == openai.EventSessionUpdated:
		logger.Info(r.ctx, "Session updated successfully")
	case ev.Type == openai.EventError:
		logger.Error(r.ctx, "Realtime provider reported an error", zap.ByteString("error", ev.Error))
	case openai.IsLoggedEvent(ev.Type):
		logger.Info(r.ctx, "Received realtime event", zap.String("event_type", ev.Type))
	default:
		logger.Debug(r.ctx, "Unhandled realtime event", zap.String("event_type", ev.Type))
	}
}

// HandleTelephony processes one inbound media stream frame
func (r *Relay) HandleTelephony(raw []byte) {
	var msg TelephonyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Warn(r.ctx, "Error parsing telephony message", zap.Error(err))
		return
	}

	switch msg.Event {
	case TelephonyEventMedia:
		if msg.Media == nil || !r.open.Load() {
			return
		}
		r.mu.Lock()
		conn := r.provider
		r.mu.Unlock()
		if conn == nil {
			return
		}
		if err := conn.WriteJSON(openai.NewInputAudioAppend(msg.Media.Payload)); err != nil {
			logger.Debug(r.ctx, "Dropped caller audio", zap.Error(err))
		}
	case TelephonyEventStart:
		sid := msg.StreamSid
		if msg.Start != nil && msg.Start.StreamSid != "" {
			sid = msg.Start.StreamSid
		}
		r.call.SetStreamID(sid)
		logger.Info(r.ctx, "Incoming stream has started", zap.String("stream_sid", sid))
	default:
		logger.Info(r.ctx, "Received non-media event", zap.String("event_type", msg.Event))
	}
}

// ProviderOpen reports whether caller audio is currently forwarded
func (r *Relay) ProviderOpen() bool {
	return r.open.Load()
}

// Close tears down the provider side after the telephony connection closed
func (r *Relay) Close() {
	r.cancel()

	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	conn := r.provider
	r.mu.Unlock()

	r.open.Store(false)
	if conn != nil {
		_ = conn.Close()
	}
	r.wg.Wait()
	logger.Info(r.ctx, "Client disconnected")
}
