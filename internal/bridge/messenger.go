package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/tau/pkg/models"
)

// inboundBuffer collects push-delivered events (Discord gateway,
// Telegram long-poll) between discover cycles, since both transports
// deliver via callback rather than a pull API (spec §4.5 "Discover:
// ... WebSocket receive for push").
type inboundBuffer struct {
	mu     sync.Mutex
	events []models.BridgeEvent
}

func (b *inboundBuffer) push(ev models.BridgeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *inboundBuffer) drain() []models.BridgeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.events
	b.events = nil
	return events
}

// DiscordTransportConfig configures the Discord messenger transport.
type DiscordTransportConfig struct {
	Session       *discordgo.Session
	ChannelID     string
	MaxChunkChars int
	RetryMax      int
	RetryBaseMS   int64
}

// NewDiscordTransport builds a Transport backed by an already-open
// discordgo.Session, buffering gateway message events between Discover
// polls.
func NewDiscordTransport(cfg DiscordTransportConfig) Transport {
	buf := &inboundBuffer{}
	cfg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.ChannelID != cfg.ChannelID {
			return
		}
		buf.push(models.BridgeEvent{
			Key:            "discord:" + m.ID,
			Kind:           models.BridgeEventMessage,
			ActorID:        m.Author.ID,
			ConversationID: m.ChannelID,
			CreatedAt:      discordSnowflakeTime(m.ID),
			Text:           m.Content,
		})
	})

	maxChunk := cfg.MaxChunkChars
	if maxChunk <= 0 {
		maxChunk = 2000
	}

	return Transport{
		Name:          "discord",
		MaxChunkChars: maxChunk,
		Retry:         slackRetry(cfg.RetryMax, cfg.RetryBaseMS), // Discord shares Slack's 429/5xx + Retry-After-in-seconds shape
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) {
			return buf.drain(), nil
		},
		PostPlaceholder: func(ctx context.Context, event models.BridgeEvent) (string, error) {
			msg, err := cfg.Session.ChannelMessageSend(cfg.ChannelID, "working...")
			if err != nil {
				return "", err
			}
			return msg.ID, nil
		},
		UpdatePlaceholder: func(ctx context.Context, handle, chunk string) error {
			_, err := cfg.Session.ChannelMessageEdit(cfg.ChannelID, handle, chunk)
			return err
		},
		PostNew: func(ctx context.Context, event models.BridgeEvent, chunk string) error {
			_, err := cfg.Session.ChannelMessageSend(cfg.ChannelID, chunk)
			return err
		},
	}
}

func discordSnowflakeTime(id string) time.Time {
	var snowflake int64
	fmt.Sscanf(id, "%d", &snowflake)
	const discordEpochMS int64 = 1420070400000
	ms := (snowflake >> 22) + discordEpochMS
	return time.UnixMilli(ms)
}

// TelegramTransportConfig configures the Telegram messenger transport.
type TelegramTransportConfig struct {
	Bot           *tgbot.Bot
	ChatID        int64
	MaxChunkChars int
	RetryMax      int
	RetryBaseMS   int64
}

// NewTelegramTransport builds a Transport backed by an already-running
// go-telegram/bot client, buffering update-handler messages between
// Discover polls.
func NewTelegramTransport(cfg TelegramTransportConfig) Transport {
	buf := &inboundBuffer{}
	cfg.Bot.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return update.Message != nil && update.Message.Chat.ID == cfg.ChatID
	}, func(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update) {
		msg := update.Message
		buf.push(models.BridgeEvent{
			Key:            fmt.Sprintf("telegram:%d:%d", cfg.ChatID, msg.ID),
			Kind:           models.BridgeEventMessage,
			ActorID:        fmt.Sprintf("%d", msg.From.ID),
			ConversationID: fmt.Sprintf("%d", cfg.ChatID),
			CreatedAt:      time.Unix(int64(msg.Date), 0),
			Text:           msg.Text,
		})
	})

	maxChunk := cfg.MaxChunkChars
	if maxChunk <= 0 {
		maxChunk = 4096
	}

	return Transport{
		Name:          "telegram",
		MaxChunkChars: maxChunk,
		Retry:         slackRetry(cfg.RetryMax, cfg.RetryBaseMS),
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) {
			return buf.drain(), nil
		},
		PostPlaceholder: func(ctx context.Context, event models.BridgeEvent) (string, error) {
			sent, err := cfg.Bot.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: cfg.ChatID, Text: "working..."})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d", sent.ID), nil
		},
		UpdatePlaceholder: func(ctx context.Context, handle string, chunk string) error {
			var id int
			fmt.Sscanf(handle, "%d", &id)
			_, err := cfg.Bot.EditMessageText(ctx, &tgbot.EditMessageTextParams{ChatID: cfg.ChatID, MessageID: id, Text: chunk})
			return err
		},
		PostNew: func(ctx context.Context, event models.BridgeEvent, chunk string) error {
			_, err := cfg.Bot.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: cfg.ChatID, Text: chunk})
			return err
		},
	}
}
