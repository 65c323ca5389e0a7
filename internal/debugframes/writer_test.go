package debugframes

import (
	"bufio"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"slouchless/internal/camera"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame() camera.Frame {
	return camera.NewFrame(image.NewRGBA(image.Rect(0, 0, 16, 12)), time.Now(), 1)
}

func TestWriter_SaveAndPrune(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 3)
	require.NoError(t, err)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var saved []Saved
	for i := 0; i < 5; i++ {
		w.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		s, err := w.SaveFrame(frame())
		require.NoError(t, err)
		// Distinct mtimes so pruning order is deterministic.
		mod := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, os.Chtimes(s.Path, mod, mod))
		saved = append(saved, s)
	}

	frames, err := w.Frames()
	require.NoError(t, err)
	// Only the newest three remain.
	assert.Len(t, frames, 3)
	assert.Equal(t, saved[4].Path, frames[len(frames)-1])
	assert.NoFileExists(t, saved[0].Path)
	assert.FileExists(t, saved[4].Path)
	assert.Contains(t, saved[0].ID, "20260102_030405")
}

func TestWriter_Log(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 0)
	require.NoError(t, err)

	require.NoError(t, w.Log(EventFrameCaptured, map[string]any{"frame_id": "abc"}))
	require.NoError(t, w.Log(EventInferenceOK, map[string]any{"frame_id": "abc", "status": "ok"}))

	f, err := os.Open(filepath.Join(dir, LogFile))
	require.NoError(t, err)
	defer f.Close()

	var records []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		records = append(records, r)
	}
	require.Len(t, records, 2)
	assert.Equal(t, EventFrameCaptured, records[0]["event"])
	assert.Equal(t, "ok", records[1]["status"])
	assert.NotEmpty(t, records[1]["ts"])
}

func TestWriter_RejectsEmptyFrame(t *testing.T) {
	w, err := NewWriter(t.TempDir(), 3)
	require.NoError(t, err)

	_, err = w.SaveFrame(camera.Frame{})
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, LogFile), []byte("{}\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "keep"), 0o755))

	require.NoError(t, Clear(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep", entries[0].Name())

	assert.NoError(t, Clear(filepath.Join(dir, "missing")))
}
