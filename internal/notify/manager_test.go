package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mocks

type mockSlackPoster struct {
	postMessageContextFunc func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

func (m *mockSlackPoster) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if m.postMessageContextFunc != nil {
		return m.postMessageContextFunc(ctx, channelID, options...)
	}
	return "", "", nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	name string
	msgs []Message
	err  error
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// Tests

func TestManager_EventGating(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	m := NewManager(Config{Events: map[string]bool{EventSlouch: true, EventRecovered: false}}).WithProvider(rec)

	assert.True(t, m.IsEnabled(EventSlouch))
	assert.False(t, m.IsEnabled(EventRecovered))
	assert.False(t, m.IsEnabled(EventError))

	require.NoError(t, m.Notify(context.Background(), EventSlouch, Message{Body: "sit up"}))
	require.NoError(t, m.Notify(context.Background(), EventRecovered, Message{Body: "better"}))
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "sit up", rec.msgs[0].Body)
}

func TestManager_DisabledWithoutProviders(t *testing.T) {
	m := NewManager(Config{Events: map[string]bool{EventSlouch: true}})
	assert.Empty(t, m.Providers())
	assert.False(t, m.IsEnabled(EventSlouch))
	assert.NoError(t, m.Notify(context.Background(), EventSlouch, Message{}))
}

func TestManager_ProviderFailureDoesNotStopOthers(t *testing.T) {
	failing := &recordingNotifier{name: "failing", err: errors.New("daemon down")}
	ok := &recordingNotifier{name: "ok"}
	m := NewManager(Config{}).WithProvider(failing).WithProvider(ok)

	err := m.Notify(context.Background(), EventSlouch, Message{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon down")
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, []string{"failing", "ok"}, m.Providers())
}

func TestManager_NotifyExceptSkipsNamedProviders(t *testing.T) {
	desktop := &recordingNotifier{name: DesktopProvider}
	slackRec := &recordingNotifier{name: "slack"}
	m := NewManager(Config{}).WithProvider(desktop).WithProvider(slackRec)

	require.NoError(t, m.NotifyExcept(context.Background(), EventSlouch, Message{Title: "Slouch detected"}, DesktopProvider))
	assert.Equal(t, 0, desktop.count())
	assert.Equal(t, 1, slackRec.count())

	require.NoError(t, m.NotifyExcept(context.Background(), EventSlouch, Message{Title: "Slouch detected"}))
	assert.Equal(t, 1, desktop.count())
	assert.Equal(t, 2, slackRec.count())
}

func TestManager_NotifyOnce(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	m := NewManager(Config{}).WithProvider(rec)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.NotifyOnce(context.Background(), EventError, Message{Body: "fatal"}))
	}
	assert.Equal(t, 1, rec.count())
}

func TestManager_SlackRequiresToken(t *testing.T) {
	t.Setenv("SLACK_BOT_USER_TOKEN", "")
	m := NewManager(Config{SlackEnabled: true})
	assert.Empty(t, m.Providers())

	t.Setenv("SLACK_BOT_USER_TOKEN", "xoxb-test")
	m = NewManager(Config{SlackEnabled: true, DesktopEnabled: true})
	assert.Equal(t, []string{"desktop", "slack"}, m.Providers())
}

func TestSlackNotifier_PostsToChannel(t *testing.T) {
	var gotChannel string
	poster := &mockSlackPoster{
		postMessageContextFunc: func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
			gotChannel = channelID
			return channelID, "123.456", nil
		},
	}

	n := NewSlackNotifierWithClient(poster, "")
	require.NoError(t, n.Send(context.Background(), Message{Title: "Slouchless", Body: "sit up"}))
	assert.Equal(t, "#general", gotChannel)

	poster.postMessageContextFunc = func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
		return "", "", errors.New("channel_not_found")
	}
	err := n.Send(context.Background(), Message{Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestSlackNotifier_Webhook(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackWebhookNotifier(server.URL)
	require.NoError(t, n.Send(context.Background(), Message{Title: "Posture", Body: "sit up"}))
	assert.Contains(t, body, "sit up")
	assert.Contains(t, body, "*Posture*")
}
