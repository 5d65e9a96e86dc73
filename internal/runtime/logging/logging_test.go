package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(level slog.Leveler) (*bytes.Buffer, ServiceLogger) {
	buf := &bytes.Buffer{}
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return buf, NewSlogServiceLogger(slog.New(handler))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, sc.Err())
	return records
}

func TestSlogComponentLoggerWritesFields(t *testing.T) {
	buf, logger := jsonLogger(slog.LevelDebug)

	Component(logger, "bridge").Info("Request resolved", LogFields{
		"type":     "getTheme",
		"attempts": 2,
	})

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "Request resolved", rec["msg"])
	assert.Equal(t, "bridge", rec["component"])
	assert.Equal(t, "getTheme", rec["type"])
	assert.EqualValues(t, 2, rec["attempts"])
}

func TestSlogErrorCarriesCause(t *testing.T) {
	buf, logger := jsonLogger(slog.LevelInfo)

	logger.Error("Publish failed", errors.New("broker down"), LogFields{"topic": "codeshot.webview"})

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Equal(t, "ERROR", records[0]["level"])
	assert.Equal(t, "broker down", records[0]["error"])
	assert.Equal(t, "codeshot.webview", records[0]["topic"])
}

func TestSlogTraceSitsBelowDebug(t *testing.T) {
	buf, logger := jsonLogger(slog.LevelDebug)
	logger.Trace("Unrouted inbound message", LogFields{"type": "ping"})
	logger.Debug("Resending request", nil)

	records := decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Equal(t, "Resending request", records[0]["msg"])

	buf, logger = jsonLogger(watermill.LevelTrace)
	logger.Trace("Unrouted inbound message", LogFields{"type": "ping"})

	records = decodeLines(t, buf)
	require.Len(t, records, 1)
	assert.Equal(t, "DEBUG-4", records[0]["level"])
	assert.Equal(t, "ping", records[0]["type"])
}

func TestWithScopesChildOnly(t *testing.T) {
	capture := watermill.NewCaptureLogger()
	parent := NewWatermillServiceLogger(capture)
	child := parent.With(LogFields{"origin": "vscode-webview://abc"})

	parent.Info("parent", nil)
	child.Info("child", LogFields{"type": "alert"})

	infos := capture.Captured()[watermill.InfoLogLevel]
	require.Len(t, infos, 2)
	assert.NotContains(t, infos[0].Fields, "origin")
	assert.Equal(t, "vscode-webview://abc", infos[1].Fields["origin"])
	assert.Equal(t, "alert", infos[1].Fields["type"])
}

func TestWithEmptyFieldsReturnsReceiver(t *testing.T) {
	logger := NewWatermillServiceLogger(watermill.NopLogger{})
	assert.Same(t, logger, logger.With(nil))
	assert.Same(t, logger, logger.With(LogFields{}))
}

func TestOrNop(t *testing.T) {
	nop := OrNop(nil)
	require.NotNil(t, nop)
	assert.NotPanics(t, func() {
		nop.Error("dropped", errors.New("x"), nil)
		Component(nil, "orchestrator").Info("dropped", nil)
	})

	logger := NewNopServiceLogger()
	assert.Same(t, logger, OrNop(logger))
}

func TestConstructorsRejectNil(t *testing.T) {
	cases := map[string]func(){
		"slog":      func() { NewSlogServiceLogger(nil) },
		"watermill": func() { NewWatermillServiceLogger(nil) },
		"adapter":   func() { NewWatermillAdapter(nil) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Panics(t, fn)
		})
	}
}

func TestWatermillAdapterUnwraps(t *testing.T) {
	capture := watermill.NewCaptureLogger()
	adapter := NewWatermillAdapter(Component(NewWatermillServiceLogger(capture), "channel"))

	adapter.Debug("Subscribing to topic", watermill.LogFields{"topic": "codeshot.host"})

	debugs := capture.Captured()[watermill.DebugLogLevel]
	require.Len(t, debugs, 1)
	assert.Equal(t, "channel", debugs[0].Fields["component"])
	assert.Equal(t, "codeshot.host", debugs[0].Fields["topic"])
}

func TestWatermillAdapterWrapsCustomLogger(t *testing.T) {
	rec := newRecordingLogger()
	adapter := NewWatermillAdapter(rec)

	child := adapter.With(watermill.LogFields{"topic": "codeshot.webview"})
	child.Info("Publishing", watermill.LogFields{"uuid": "01J"})
	adapter.Error("Publish failed", errors.New("closed"), nil)
	adapter.Trace("ack", nil)

	entries := *rec.entries
	require.Len(t, entries, 3)
	assert.Equal(t, "info", entries[0].level)
	assert.Equal(t, LogFields{"topic": "codeshot.webview", "uuid": "01J"}, entries[0].fields)
	assert.Equal(t, "error", entries[1].level)
	assert.EqualError(t, entries[1].err, "closed")
	assert.Empty(t, entries[1].fields)
	assert.Equal(t, "trace", entries[2].level)
}

type recordedEntry struct {
	level  string
	msg    string
	err    error
	fields LogFields
}

// recordingLogger is a ServiceLogger that is not backed by Watermill.
type recordingLogger struct {
	entries *[]recordedEntry
	fields  LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: new([]recordedEntry)}
}

func (r *recordingLogger) With(fields LogFields) ServiceLogger {
	merged := maps.Clone(r.fields)
	if merged == nil {
		merged = LogFields{}
	}
	maps.Copy(merged, fields)
	return &recordingLogger{entries: r.entries, fields: merged}
}

func (r *recordingLogger) record(level, msg string, err error, fields LogFields) {
	merged := maps.Clone(r.fields)
	if merged == nil && len(fields) > 0 {
		merged = LogFields{}
	}
	maps.Copy(merged, fields)
	*r.entries = append(*r.entries, recordedEntry{level: level, msg: msg, err: err, fields: merged})
}

func (r *recordingLogger) Debug(msg string, fields LogFields) { r.record("debug", msg, nil, fields) }
func (r *recordingLogger) Info(msg string, fields LogFields)  { r.record("info", msg, nil, fields) }
func (r *recordingLogger) Trace(msg string, fields LogFields) { r.record("trace", msg, nil, fields) }
func (r *recordingLogger) Error(msg string, err error, fields LogFields) {
	r.record("error", msg, err, fields)
}
