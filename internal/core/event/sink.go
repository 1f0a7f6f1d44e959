package event

import (
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink delivers named events keyed by end user. Implementations are safe for concurrent use.
type Sink interface {
	Track(ctx context.Context, userID, name string, props domain.JSONB) (*Ack, error)
	Close() error
}

// Middleware wraps a sink
type Middleware func(next Sink) Sink

// Chain applies middleware so the first one listed runs outermost
func Chain(s Sink, mw ...Middleware) Sink {
	for i := len(mw) - 1; i >= 0; i-- {
		s = mw[i](s)
	}
	return s
}

func newAck(userID, name string, props domain.JSONB) *Ack {
	if props == nil {
		props = domain.JSONB{}
	}
	return &Ack{
		MessageID:  uuid.NewString(),
		UserID:     userID,
		Event:      name,
		Properties: props,
		Timestamp:  time.Now().UTC(),
	}
}

// LogSink writes events to the log only. Used when no analytics key is configured.
type LogSink struct{}

func (LogSink) Track(ctx context.Context, userID, name string, props domain.JSONB) (*Ack, error) {
	ack := newAck(userID, name, props)
	logger.Info(ctx, "Event tracked",
		zap.String("event", name),
		zap.String("user_id", userID),
		zap.String("message_id", ack.MessageID),
		zap.Any("properties", ack.Properties))
	return ack, nil
}

func (LogSink) Close() error { return nil }

type sinkFunc struct {
	track func(ctx context.Context, userID, name string, props domain.JSONB) (*Ack, error)
	next  Sink
}

func (s sinkFunc) Track(ctx context.Context, userID, name string, props domain.JSONB) (*Ack, error) {
	return s.track(ctx, userID, name, props)
}

func (s sinkFunc) Close() error { return s.next.Close() }

// LoggingMiddleware logs every tracked event and its outcome
func LoggingMiddleware(next Sink) Sink {
	return sinkFunc{next: next, track: func(ctx context.Context, userID, name string, props domain.JSONB) (*Ack, error) {
		start := time.Now()
		ack, err := next.Track(ctx, userID, name, props)
		if err != nil {
			logger.Error(ctx, "Event tracking failed", zap.String("event", name), zap.String("user_id", userID), zap.Error(err))
			return ack, err
		}
		logger.Debug(ctx, "Event enqueued", zap.String("event", name), zap.String("user_id", userID), zap.Duration("duration", time.Since(start)))
		return ack, nil
	}}
}

// RecoveryMiddleware converts a panicking sink into an error
func RecoveryMiddleware(next Sink) Sink {
	return sinkFunc{next: next, track: func(ctx context.Context, userID, name string, props domain.JSONB) (ack *Ack, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "Panic in event sink", zap.String("event", name), zap.Any("panic", r))
				ack, err = nil, fmt.Errorf("event sink panic: %v", r)
			}
		}()
		return next.Track(ctx, userID, name, props)
	}}
}
