// Package debugframes keeps the most recent captured frames on disk together
// with a JSON-lines event log, for inspecting what the detector saw.
package debugframes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"slouchless/internal/camera"

	"github.com/google/uuid"
)

const (
	LogFile = "log.jsonl"

	EventFrameCaptured  = "frame_captured"
	EventInferenceOK    = "inference_result"
	EventInferenceError = "inference_error"
)

// Saved identifies a frame written by SaveFrame.
type Saved struct {
	ID   string
	Path string
}

// Writer saves JPEG frames into a directory, pruning the oldest beyond
// MaxFrames, and appends events to log.jsonl in the same directory.
type Writer struct {
	dir       string
	maxFrames int
	quality   int
	now       func() time.Time

	mu sync.Mutex
}

// NewWriter creates dir if needed. maxFrames <= 0 keeps every frame.
func NewWriter(dir string, maxFrames int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create debug frames dir: %w", err)
	}
	return &Writer{dir: dir, maxFrames: maxFrames, quality: 90, now: time.Now}, nil
}

// Dir returns the directory frames are written to.
func (w *Writer) Dir() string {
	return w.dir
}

// SaveFrame writes f as <timestamp>_<id>.jpg and prunes old frames.
func (w *Writer) SaveFrame(f camera.Frame) (Saved, error) {
	data, err := camera.EncodeJPEG(f, w.quality)
	if err != nil {
		return Saved{}, err
	}

	id := w.now().Format("20060102_150405.000000")
	id = strings.Replace(id, ".", "_", 1) + "_" + uuid.NewString()[:8]
	path := filepath.Join(w.dir, id+".jpg")

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Saved{}, fmt.Errorf("failed to write debug frame: %w", err)
	}
	if err := w.prune(); err != nil {
		return Saved{ID: id, Path: path}, err
	}
	return Saved{ID: id, Path: path}, nil
}

// Log appends record to log.jsonl with a "ts" field added.
func (w *Writer) Log(event string, fields map[string]any) error {
	record := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		record[k] = v
	}
	record["ts"] = w.now().Format(time.RFC3339)
	record["event"] = event

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode debug event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(w.dir, LogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open debug log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write debug log: %w", err)
	}
	return nil
}

// Frames lists saved frame paths, oldest first.
func (w *Writer) Frames() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames()
}

func (w *Writer) frames() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}

	type entry struct {
		path string
		mod  time.Time
	}
	var list []entry
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jpg" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		list = append(list, entry{filepath.Join(w.dir, e.Name()), info.ModTime()})
	}

	// Names start with the capture timestamp, so they break mtime ties.
	sort.Slice(list, func(i, j int) bool {
		if !list[i].mod.Equal(list[j].mod) {
			return list[i].mod.Before(list[j].mod)
		}
		return list[i].path < list[j].path
	})

	paths := make([]string, len(list))
	for i, e := range list {
		paths[i] = e.path
	}
	return paths, nil
}

func (w *Writer) prune() error {
	if w.maxFrames <= 0 {
		return nil
	}
	paths, err := w.frames()
	if err != nil {
		return err
	}
	for _, p := range paths[:max(0, len(paths)-w.maxFrames)] {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed pruning debug frame %s: %w", p, err)
		}
	}
	return nil
}

// Clear removes every regular file in dir. A missing dir is not an error.
func Clear(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read debug frames dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("failed to delete debug file %s: %w", e.Name(), err)
		}
	}
	return nil
}
