package popup

import (
	"context"
	"errors"
	"image"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"slouchless/internal/detector"
	"slouchless/internal/notify"
	"slouchless/internal/overlay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellStream(t *testing.T, script string, format string) *Stream {
	t.Helper()
	b, err := NewWindow(StreamConfig{Binary: "sh", Format: format, Grace: 50 * time.Millisecond}, false)
	require.NoError(t, err)
	b.argsFn = func(Session) []string { return []string{"-c", script} }
	return b
}

func testSession(mode Mode) Session {
	return Session{ID: "s1", Title: "Slouchless", Size: image.Pt(32, 24), FPS: 10, Mode: mode}
}

func TestStream_OpenPushClose(t *testing.T) {
	for _, format := range []string{overlay.FormatMJPEG, overlay.FormatRawVideo} {
		t.Run(format, func(t *testing.T) {
			b := shellStream(t, "cat >/dev/null", format)

			h, err := b.Open(context.Background(), testSession(ModeFeedback), testFrame())
			require.NoError(t, err)

			require.NoError(t, h.Push(testFrame(), overlay.Feedback{Status: detector.StatusOK}))
			select {
			case <-h.Done():
				t.Fatal("process exited while streaming")
			default:
			}

			require.NoError(t, h.Close())
			select {
			case <-h.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("process not stopped")
			}
			assert.Error(t, h.Push(testFrame(), overlay.Feedback{}))
		})
	}
}

func TestStream_StartupFailure(t *testing.T) {
	b := shellStream(t, "echo 'no display' >&2; exit 1", overlay.FormatMJPEG)

	_, err := b.Open(context.Background(), testSession(ModeFeedback), testFrame())
	require.Error(t, err)
}

func TestStream_MissingBinary(t *testing.T) {
	b, err := NewPlayer(StreamConfig{Binary: "/nonexistent/ffplay"})
	require.NoError(t, err)

	_, err = b.Open(context.Background(), testSession(ModeLive), testFrame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestStream_StaticClosesInput(t *testing.T) {
	// cat exits once stdin reaches EOF, which stands in for the user
	// closing a still image.
	b := shellStream(t, "cat >/dev/null", overlay.FormatMJPEG)

	h, err := b.Open(context.Background(), testSession(ModeStatic), testFrame())
	require.NoError(t, err)
	assert.NoError(t, h.Push(testFrame(), overlay.Feedback{}))

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("static session kept stdin open")
	}
	require.NoError(t, h.Close())
}

func TestStream_DefaultArgs(t *testing.T) {
	b, err := NewPlayer(StreamConfig{ExtraArgs: `-alwaysontop -vf "hflip"`})
	require.NoError(t, err)
	assert.Equal(t, "ffplay", b.Binary())
	assert.False(t, b.Blocking())
	assert.Equal(t, KindPlayer, b.Kind())

	args := strings.Join(b.args(testSession(ModeFeedback)), " ")
	assert.Contains(t, args, "-window_title Slouchless")
	assert.Contains(t, args, "-x 32 -y 24")
	assert.Contains(t, args, "-alwaysontop -vf hflip")
	assert.Contains(t, args, "-f mjpeg -framerate 10")
	assert.True(t, strings.HasSuffix(args, "-i pipe:0"))

	raw, err := NewWindow(StreamConfig{Format: overlay.FormatRawVideo}, true)
	require.NoError(t, err)
	assert.True(t, raw.Blocking())
	args = strings.Join(raw.args(testSession(ModeLive)), " ")
	assert.Contains(t, args, "-f rawvideo -pixel_format rgb24 -video_size 32x24")
}

func TestStream_InvalidConfig(t *testing.T) {
	_, err := NewPlayer(StreamConfig{Format: "h264"})
	assert.Error(t, err)

	_, err = NewPlayer(StreamConfig{ExtraArgs: `-vf "unterminated`})
	assert.Error(t, err)
}

type recordingSender struct {
	mu        sync.Mutex
	msgs      []notify.Message
	imageSeen []bool
	err       error
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, statErr := os.Stat(msg.ImagePath)
	r.msgs = append(r.msgs, msg)
	r.imageSeen = append(r.imageSeen, statErr == nil)
	return r.err
}

func TestNotify_OpenDispatchesAndEnds(t *testing.T) {
	sender := &recordingSender{}
	b := NewNotify(sender)
	b.tempDir = t.TempDir()

	s := testSession(ModeStatic)
	s.Feedback = overlay.Feedback{Status: detector.StatusSlouching, Message: "Shoulders hunched"}

	h, err := b.Open(context.Background(), s, testFrame())
	require.NoError(t, err)

	select {
	case <-h.Done():
	default:
		t.Fatal("notify session should end immediately")
	}

	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	assert.Equal(t, "Slouchless", msg.Title)
	assert.Equal(t, "BAD POSTURE: Shoulders hunched", msg.Body)
	assert.True(t, msg.Urgent)
	assert.True(t, sender.imageSeen[0])

	_, statErr := os.Stat(msg.ImagePath)
	assert.True(t, os.IsNotExist(statErr), "temp image should be removed after sending")
	require.NoError(t, h.Close())
}

func TestNotify_SendFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("dbus unavailable")}
	b := NewNotify(sender)
	b.tempDir = t.TempDir()

	_, err := b.Open(context.Background(), testSession(ModeStatic), testFrame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dbus unavailable")

	entries, _ := os.ReadDir(b.tempDir)
	assert.Empty(t, entries)
}

func TestController_NotifySessionCollapses(t *testing.T) {
	sender := &recordingSender{}
	nb := NewNotify(sender)
	nb.tempDir = t.TempDir()

	c := NewController(Config{Backend: KindNotify, Mode: ModeFeedback}, testSource(), nil, nb)
	require.NoError(t, c.Open(context.Background(), testFrame(), slouchResult))

	select {
	case <-c.Released():
	case <-time.After(2 * time.Second):
		t.Fatal("notify session did not end")
	}
	assert.Equal(t, StateClosed, c.State())
	assert.False(t, c.Disabled())
	assert.Len(t, sender.msgs, 1)

	_, open := c.Session()
	assert.False(t, open)
	last, ok := c.LastSession()
	require.True(t, ok)
	assert.Equal(t, KindNotify, last.Backend)
	assert.Equal(t, ModeStatic, last.Mode)
}
