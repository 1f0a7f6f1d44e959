package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ClareAI/astra-call-relay/internal/adapters/ws"
	"github.com/ClareAI/astra-call-relay/internal/config"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"go.uber.org/zap"
)

// RealtimeDialer opens realtime websocket connections to the model
type RealtimeDialer struct {
	Endpoint string
	APIKey   string
}

func NewRealtimeDialer(cfg *config.Config) *RealtimeDialer {
	return &RealtimeDialer{Endpoint: cfg.RealtimeEndpoint(), APIKey: cfg.OpenAIAPIKey}
}

// Dial connects to the realtime endpoint. Cancelling ctx aborts the handshake.
func (d *RealtimeDialer) Dial(ctx context.Context) (*ws.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, err := ws.Dial(ctx, d.Endpoint, header, config.DefaultConnectionTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	logger.Info(ctx, "Connected to the OpenAI Realtime API", zap.String("endpoint", d.Endpoint))
	return conn, nil
}
