package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "text")
	log.Debug("hidden")
	log.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContextAddsRunID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithRunID(context.Background(), "run-42")
	FromContext(ctx, New(&buf, "debug", "json")).Info("region done")

	assert.Contains(t, buf.String(), `"run_id":"run-42"`)
	assert.Equal(t, "run-42", RunIDFromContext(ctx))
	assert.Empty(t, RunIDFromContext(context.Background()))
}

func TestNopDiscards(t *testing.T) {
	assert.False(t, Nop().Enabled(context.Background(), 8))
}
