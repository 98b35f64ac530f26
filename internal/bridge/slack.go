package bridge

import (
	"context"
	"fmt"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/haasonsaas/tau/pkg/models"
)

// SlackTransportConfig configures the Slack polling transport.
type SlackTransportConfig struct {
	Client        *slackapi.Client
	ChannelID     string
	MaxChunkChars int // 0 defaults to Slack's ~40000 char block limit
	RetryMax      int
	RetryBaseMS   int64
}

// NewSlackTransport builds a Transport that polls one Slack channel's
// conversation history for new messages (spec §4.5 "Discover: poll the
// transport (paginated GET for REST)"), posting replies by editing a
// "working" placeholder then falling back to a new message.
func NewSlackTransport(cfg SlackTransportConfig) Transport {
	cursor := &slackCursor{}
	maxChunk := cfg.MaxChunkChars
	if maxChunk <= 0 {
		maxChunk = 38000
	}

	return Transport{
		Name:          "slack",
		MaxChunkChars: maxChunk,
		Retry:         slackRetry(cfg.RetryMax, cfg.RetryBaseMS),
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) {
			return discoverSlack(ctx, cfg.Client, cfg.ChannelID, cursor)
		},
		PostPlaceholder: func(ctx context.Context, event models.BridgeEvent) (string, error) {
			_, ts, err := cfg.Client.PostMessageContext(ctx, cfg.ChannelID, slackapi.MsgOptionText("working...", false))
			if err != nil {
				return "", err
			}
			return ts, nil
		},
		UpdatePlaceholder: func(ctx context.Context, handle, chunk string) error {
			_, _, _, err := cfg.Client.UpdateMessageContext(ctx, cfg.ChannelID, handle, slackapi.MsgOptionText(chunk, false))
			return err
		},
		PostNew: func(ctx context.Context, event models.BridgeEvent, chunk string) error {
			_, _, err := cfg.Client.PostMessageContext(ctx, cfg.ChannelID, slackapi.MsgOptionText(chunk, false))
			return err
		},
	}
}

// slackCursor holds the newest message timestamp seen so far; Discover
// passes it as the next request's Oldest bound so it only fetches
// messages newer than the last cycle.
type slackCursor struct {
	oldest string
}

func discoverSlack(ctx context.Context, client *slackapi.Client, channelID string, cursor *slackCursor) ([]models.BridgeEvent, error) {
	params := &slackapi.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    cursor.oldest,
		Limit:     200,
	}
	history, err := client.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("bridge/slack: conversations.history: %w", err)
	}

	events := make([]models.BridgeEvent, 0, len(history.Messages))
	var newest string
	for _, msg := range history.Messages {
		createdAt := slackTimestampToTime(msg.Timestamp)
		events = append(events, models.BridgeEvent{
			Key:            channelID + ":" + msg.Timestamp,
			Kind:           models.BridgeEventMessage,
			ActorID:        msg.User,
			ConversationID: channelID,
			CreatedAt:      createdAt,
			Text:           msg.Text,
		})
		if msg.Timestamp > newest {
			newest = msg.Timestamp
		}
	}
	if newest != "" {
		cursor.oldest = newest
	}
	return events, nil
}

func slackTimestampToTime(ts string) time.Time {
	var sec, nsec int64
	fmt.Sscanf(ts, "%d.%d", &sec, &nsec)
	return time.Unix(sec, nsec*1000)
}
