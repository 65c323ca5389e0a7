package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls [][]string
	fail  func(args []string) bool
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.fail != nil && f.fail(args) {
		return []byte("hint not supported"), errors.New("exit status 1")
	}
	return nil, nil
}

func TestDesktop_SendWithImage(t *testing.T) {
	fr := &fakeRunner{}
	d := NewDesktop("", "").WithRunner(fr.run)

	require.NoError(t, d.Send(context.Background(), Message{Title: "Posture", Body: "Sit up", ImagePath: "/tmp/f.jpg", Urgent: true}))
	require.Len(t, fr.calls, 1)

	call := strings.Join(fr.calls[0], " ")
	assert.True(t, strings.HasPrefix(call, "notify-send -a Slouchless -u critical"))
	assert.Contains(t, call, "-i /tmp/f.jpg")
	assert.Contains(t, call, "-h string:image-path:/tmp/f.jpg")
	assert.True(t, strings.HasSuffix(call, "Posture Sit up"))
}

func TestDesktop_RetriesWithoutHint(t *testing.T) {
	fr := &fakeRunner{fail: func(args []string) bool {
		for _, a := range args {
			if a == "-h" {
				return true
			}
		}
		return false
	}}
	d := NewDesktop("notify-send", "Slouchless").WithRunner(fr.run)

	require.NoError(t, d.Send(context.Background(), Message{Body: "Sit up", ImagePath: "/tmp/f.jpg"}))
	require.Len(t, fr.calls, 2)
	assert.NotContains(t, fr.calls[1], "-h")
	assert.Contains(t, fr.calls[1], "/tmp/f.jpg")
}

func TestDesktop_FailureWithoutImage(t *testing.T) {
	fr := &fakeRunner{fail: func([]string) bool { return true }}
	d := NewDesktop("notify-send", "").WithRunner(fr.run)

	err := d.Send(context.Background(), Message{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hint not supported")
	assert.Len(t, fr.calls, 1)
}

func TestDesktop_DefaultTitle(t *testing.T) {
	fr := &fakeRunner{}
	d := NewDesktop("notify-send", "Slouchless").WithRunner(fr.run)
	d.Expire = 0

	require.NoError(t, d.Send(context.Background(), Message{Body: "hello"}))
	assert.Equal(t, []string{"notify-send", "-a", "Slouchless", "-u", "normal", "Slouchless", "hello"}, fr.calls[0])
}
