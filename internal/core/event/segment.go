package event

import (
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-call-relay/internal/domain"
	"github.com/ClareAI/astra-call-relay/pkg/logger"
	"github.com/segmentio/analytics-go/v3"
	"go.uber.org/zap"
)

const anonymousUser = "anonymous"

// SegmentSink enqueues events on a Segment client. Delivery is batched in the background.
type SegmentSink struct {
	client analytics.Client
}

// SegmentOption configures the underlying Segment client
type SegmentOption func(*analytics.Config)

// WithEndpoint overrides the Segment API endpoint
func WithEndpoint(endpoint string) SegmentOption {
	return func(c *analytics.Config) { c.Endpoint = endpoint }
}

// WithBatch sets the flush interval and batch size
func WithBatch(interval time.Duration, size int) SegmentOption {
	return func(c *analytics.Config) {
		c.Interval = interval
		c.BatchSize = size
	}
}

func NewSegmentSink(writeKey string, opts ...SegmentOption) (*SegmentSink, error) {
	cfg := analytics.Config{
		Callback: segmentCallback{},
		Logger:   segmentLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := analytics.NewWithConfig(writeKey, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment client: %w", err)
	}
	return &SegmentSink{client: client}, nil
}

func (s *SegmentSink) Track(ctx context.Context, userID, name string, props domain.JSONB) (*Ack, error) {
	ack := newAck(userID, name, props)
	msg := analytics.Track{
		MessageId:  ack.MessageID,
		UserId:     userID,
		Event:      name,
		Timestamp:  ack.Timestamp,
		Properties: analytics.Properties(ack.Properties),
	}
	if userID == "" {
		msg.AnonymousId = anonymousUser
	}
	if err := s.client.Enqueue(msg); err != nil {
		return nil, fmt.Errorf("enqueue %q: %w", name, err)
	}
	return ack, nil
}

// Close flushes pending events
func (s *SegmentSink) Close() error {
	return s.client.Close()
}

type segmentCallback struct{}

func (segmentCallback) Success(m analytics.Message) {
	if t, ok := m.(analytics.Track); ok {
		logger.Base().Debug("Event tracked successfully", zap.String("event", t.Event), zap.String("message_id", t.MessageId))
	}
}

func (segmentCallback) Failure(m analytics.Message, err error) {
	fields := []zap.Field{zap.Error(err)}
	if t, ok := m.(analytics.Track); ok {
		fields = append(fields, zap.String("event", t.Event), zap.String("message_id", t.MessageId))
	}
	logger.Base().Error("Error tracking event", fields...)
}

type segmentLogger struct{}

func (segmentLogger) Logf(format string, args ...interface{}) {
	logger.L().Debugf(format, args...)
}

func (segmentLogger) Errorf(format string, args ...interface{}) {
	logger.L().Errorf(format, args...)
}
