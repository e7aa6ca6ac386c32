package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, format string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logger
	SetOutput(&buf, format)
	t.Cleanup(func() { logger = prev })
	return &buf
}

func TestLoggerFromContextAddsRequestID(t *testing.T) {
	buf := capture(t, "json")

	ctx := WithRequestID(context.Background(), "req-7")
	log := LoggerFromContext(ctx)
	log.Info().Str("component", "test").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-7", line["request_id"])
	assert.Equal(t, "test", line["component"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "req-7", RequestIDFromContext(ctx))
}

func TestLoggerFromContextWithoutRequestID(t *testing.T) {
	buf := capture(t, "json")

	log := LoggerFromContext(context.Background())
	log.Info().Msg("plain")

	assert.NotContains(t, buf.String(), "request_id")
}

func TestConsoleFormat(t *testing.T) {
	buf := capture(t, "console")

	Logger().Info().Msg("console line")

	assert.Contains(t, buf.String(), "console line")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestSetupParsesLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	prevLogger := logger
	t.Cleanup(func() { logger = prevLogger })

	Setup("WARN", "json")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	Setup("nonsense", "json")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestWithFieldsKeepsRequestID(t *testing.T) {
	buf := capture(t, "json")

	ctx := WithRequestID(context.Background(), "req-9")
	log := WithFields(ctx, "component", "bridge", "attempt", 2)
	log.Info().Msg("fields")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-9", line["request_id"])
	assert.Equal(t, "bridge", line["component"])
	assert.Equal(t, float64(2), line["attempt"])
}
