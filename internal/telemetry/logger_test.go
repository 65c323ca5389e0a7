package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler keeps records and the attrs / groups it was derived with.
type recordingHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
	minimum slog.Level
	attrs   []slog.Attr
	groups  []string
	failErr error
}

func newRecordingHandler(minimum slog.Level) *recordingHandler {
	return &recordingHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}, minimum: minimum}
}

func (h *recordingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minimum
}

func (h *recordingHandler) Handle(_ context.Context, record slog.Record) error {
	if h.failErr != nil {
		return h.failErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, record)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.groups = append(append([]string(nil), h.groups...), name)
	return &c
}

func (h *recordingHandler) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range *h.records {
		out = append(out, r.Message)
	}
	return out
}

// captureDefault routes the default logger into a JSON buffer for one test.
func captureDefault(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})))
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestMultiHandler_RoutesByLevel(t *testing.T) {
	console := newRecordingHandler(slog.LevelInfo)
	file := newRecordingHandler(slog.LevelDebug)
	logger := slog.New(&multiHandler{handlers: []slog.Handler{console, file}})

	logger.Debug("Analyzing frame", "seq", 3)
	logger.Warn("Slouch detected", "message", "Shoulders hunched")

	assert.Equal(t, []string{"Slouch detected"}, console.messages())
	assert.Equal(t, []string{"Analyzing frame", "Slouch detected"}, file.messages())
}

func TestMultiHandler_Enabled(t *testing.T) {
	quiet := &multiHandler{handlers: []slog.Handler{newRecordingHandler(slog.LevelError), newRecordingHandler(slog.LevelWarn)}}

	assert.False(t, quiet.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, quiet.Enabled(context.Background(), slog.LevelWarn))
}

func TestMultiHandler_DerivedHandlers(t *testing.T) {
	a := newRecordingHandler(slog.LevelInfo)
	b := newRecordingHandler(slog.LevelInfo)
	multi := &multiHandler{handlers: []slog.Handler{a, b}}

	withBackend, ok := multi.WithAttrs([]slog.Attr{slog.String("backend", "ollama")}).(*multiHandler)
	require.True(t, ok)
	grouped, ok := withBackend.WithGroup("popup").(*multiHandler)
	require.True(t, ok)

	for _, h := range grouped.handlers {
		rh := h.(*recordingHandler)
		assert.Equal(t, []slog.Attr{slog.String("backend", "ollama")}, rh.attrs)
		assert.Equal(t, []string{"popup"}, rh.groups)
	}
	assert.Empty(t, a.attrs, "deriving must not modify the original handler")
}

func TestMultiHandler_HandleError(t *testing.T) {
	broken := newRecordingHandler(slog.LevelInfo)
	broken.failErr = errors.New("disk full")
	multi := &multiHandler{handlers: []slog.Handler{broken}}

	err := multi.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "Posture checked", 0))
	assert.EqualError(t, err, "disk full")
}

func TestLogHelpers(t *testing.T) {
	buf := captureDefault(t, slog.LevelDebug)

	LogDebug("Analyzing frame", "seq", 7)
	LogInfo("Posture checked", "status", "ok")
	LogWarn("Slouch detected", "message", "Head forward")
	LogError("Posture check failed", errors.New("connection refused"), "kind", "transient")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 4)

	assert.Equal(t, "DEBUG", entries[0]["level"])
	assert.Equal(t, float64(7), entries[0]["seq"])
	assert.Equal(t, "ok", entries[1]["status"])
	assert.Equal(t, "WARN", entries[2]["level"])
	assert.Equal(t, "ERROR", entries[3]["level"])
	assert.Equal(t, "connection refused", entries[3]["error"])
	assert.Equal(t, "transient", entries[3]["kind"])
}

func TestNewLogger_WritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slouchless.log")

	logger := NewLogger(slog.LevelInfo, path, true)
	logger.Debug("Analyzing frame")
	logger.Info("Monitor started", "interval", "30s")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"Monitor started"`)
	assert.NotContains(t, string(content), "Analyzing frame")
}

func TestNewLogger_SilencedWithoutFile(t *testing.T) {
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	logger := NewLogger(slog.LevelInfo, "", true)
	logger.Info("Popup opened")

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestNewLogger_MissingLogDirectory(t *testing.T) {
	buf := captureDefault(t, slog.LevelInfo)

	logger := NewLogger(slog.LevelInfo, filepath.Join(t.TempDir(), "missing", "slouchless.log"), true)
	assert.NotNil(t, logger)
	assert.Contains(t, buf.String(), "Failed to open log file")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		" DEBUG ":  slog.LevelDebug,
		"info":     slog.LevelInfo,
		"warn":     slog.LevelWarn,
		"warning":  slog.LevelWarn,
		"error":    slog.LevelError,
		"critical": slog.LevelError,
		"":         slog.LevelInfo,
		"verbose":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}
