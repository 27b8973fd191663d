package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogServiceLoggerWritesThrough(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger := NewSlogServiceLogger(base)
	logger.Info("adapter started", LogFields{"node": "n1"})

	out := buf.String()
	assert.Contains(t, out, "adapter started")
	assert.Contains(t, out, "n1")
}

func TestWithFieldsArePropagated(t *testing.T) {
	captured := &capturingLogger{}
	logger := NewWatermillServiceLogger(captured)

	logger.With(LogFields{"pubsub": "chat"}).Error("append failed", errors.New("boom"), LogFields{"topic": "room:1"})

	require.Len(t, captured.entries, 1)
	entry := captured.entries[0]
	assert.Equal(t, "append failed", entry.msg)
	assert.Equal(t, "chat", entry.fields["pubsub"])
	assert.Equal(t, "room:1", entry.fields["topic"])
	assert.EqualError(t, entry.err, "boom")
}

func TestWatermillAdapterRoundTrip(t *testing.T) {
	captured := &capturingLogger{}
	service := NewWatermillServiceLogger(captured)

	adapter := NewWatermillAdapter(service)
	adapter.Debug("subscribing", watermill.LogFields{"attempt": 2})

	require.Len(t, captured.entries, 1)
	assert.Equal(t, "subscribing", captured.entries[0].msg)
	assert.Equal(t, 2, captured.entries[0].fields["attempt"])
}

func TestNopServiceLoggerDoesNotPanic(t *testing.T) {
	logger := NewNopServiceLogger()
	logger.Debug("ignored", nil)
	logger.Info("ignored", nil)
	logger.Error("ignored", errors.New("ignored"), nil)
	logger.Trace("ignored", nil)
	logger.With(LogFields{"k": "v"}).Info("still ignored", nil)
}

type capturedEntry struct {
	msg    string
	err    error
	fields watermill.LogFields
}

type capturingLogger struct {
	with    watermill.LogFields
	entries []capturedEntry
}

func (c *capturingLogger) record(msg string, err error, fields watermill.LogFields) {
	merged := watermill.LogFields{}
	for k, v := range c.with {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	c.entries = append(c.entries, capturedEntry{msg: msg, err: err, fields: merged})
}

func (c *capturingLogger) Error(msg string, err error, fields watermill.LogFields) {
	c.record(msg, err, fields)
}
func (c *capturingLogger) Info(msg string, fields watermill.LogFields)  { c.record(msg, nil, fields) }
func (c *capturingLogger) Debug(msg string, fields watermill.LogFields) { c.record(msg, nil, fields) }
func (c *capturingLogger) Trace(msg string, fields watermill.LogFields) { c.record(msg, nil, fields) }

func (c *capturingLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := watermill.LogFields{}
	for k, v := range c.with {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	c.with = merged
	return c
}
