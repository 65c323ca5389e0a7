package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackPoster is the subset of the Slack API client we use.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts notifications to a channel with a bot token, or to an
// incoming webhook when only a webhook URL is configured.
type SlackNotifier struct {
	client     SlackPoster
	channelID  string
	webhookURL string
}

// NewSlackNotifier creates a bot-token notifier.
func NewSlackNotifier(token, channelID string) *SlackNotifier {
	return NewSlackNotifierWithClient(slack.New(token), channelID)
}

// NewSlackNotifierWithClient lets tests inject the API client.
func NewSlackNotifierWithClient(client SlackPoster, channelID string) *SlackNotifier {
	if channelID == "" {
		channelID = "#general"
	}
	return &SlackNotifier{client: client, channelID: channelID}
}

// NewSlackWebhookNotifier creates a webhook notifier.
func NewSlackWebhookNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL}
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

// Send posts the message text. Attachments are not uploaded.
func (s *SlackNotifier) Send(ctx context.Context, msg Message) error {
	text := msg.Body
	if msg.Title != "" {
		text = fmt.Sprintf("*%s*\n%s", msg.Title, msg.Body)
	}

	if s.webhookURL != "" {
		if err := slack.PostWebhookContext(ctx, s.webhookURL, &slack.WebhookMessage{Text: text}); err != nil {
			return fmt.Errorf("failed to send slack webhook: %w", err)
		}
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("slack client is not configured")
	}
	if _, _, err := s.client.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	return nil
}
