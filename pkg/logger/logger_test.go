package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithCallTagsEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := context.WithValue(context.Background(), ctxKey{}, zap.New(core))

	ctx = WithCall(ctx, "call-1", "tool_agent")
	ctx = WithFields(ctx, zap.String("thread_id", "thread_1"))
	Info(ctx, "prompt accepted", zap.Int("turn", 1))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "call-1", fields["call_id"])
	assert.Equal(t, "tool_agent", fields["mode"])
	assert.Equal(t, "thread_1", fields["thread_id"])
	assert.Equal(t, int64(1), fields["turn"])
}

func TestFromContextFallsBackToBase(t *testing.T) {
	assert.Equal(t, Base(), FromContext(context.Background()))
	assert.Equal(t, Base(), FromContext(nil)) //nolint:staticcheck
}
