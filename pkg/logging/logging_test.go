package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestIDIsAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core)).Named("store")

	ctx := WithRequestID(context.Background(), "req-1")
	l.Info(ctx, "refreshed", zap.Int("orders", 3))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "store", fields["component"])
		assert.EqualValues(t, 3, fields["orders"])
	}
}

func TestNewRequestKeepsExistingID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "fixed")
	assert.Equal(t, "fixed", RequestID(NewRequest(ctx)))

	fresh := NewRequest(context.Background())
	assert.NotEqual(t, "no-request-id", RequestID(fresh))
}

func TestLevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := New(zap.New(core))

	l.Debug(context.Background(), "hidden")
	l.Warn(context.Background(), "shown")

	assert.Equal(t, 1, logs.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, INFO, ParseLevel(""))
}
