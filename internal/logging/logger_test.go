package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var typedNil *componentLogger
	var logger Logger = typedNil
	require.True(t, IsNil(logger))

	safe := OrNop(logger)
	require.False(t, IsNil(safe))
	require.NotPanics(t, func() { safe.Info("hello %s", "world") })
}

func TestComponentLoggerFormatsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewComponentLoggerWithHandler("test", handler)

	logger.Info("hello %s", "world")

	require.Contains(t, buf.String(), "hello world")
	require.Contains(t, buf.String(), "component=test")
}
