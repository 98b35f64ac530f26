package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/haasonsaas/tau/pkg/models"
)

// WebhookReceiver accumulates inbound events POSTed to it by an
// external event source, for transports whose only integration point
// is a webhook rather than a pollable or push-streamed API.
type WebhookReceiver struct {
	mu     sync.Mutex
	events []models.BridgeEvent
}

// NewWebhookReceiver creates an empty receiver. ServeHTTP should be
// mounted at the path the external service is configured to call.
func NewWebhookReceiver() *WebhookReceiver {
	return &WebhookReceiver{}
}

// webhookPayload is the normalized shape this receiver accepts. A
// concrete deployment fronts this with transport-specific signature
// verification before forwarding the normalized payload here.
type webhookPayload struct {
	Key            string                     `json:"key"`
	ConversationID string                     `json:"conversation_id"`
	ActorID        string                     `json:"actor_id"`
	Text           string                     `json:"text"`
	Attachments    []models.BridgeAttachment `json:"attachments,omitempty"`
}

// ServeHTTP implements http.Handler, decoding one webhookPayload per
// request body.
func (w *WebhookReceiver) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer req.Body.Close()

	var payload webhookPayload
	if err := json.NewDecoder(io.LimitReader(req.Body, 1<<20)).Decode(&payload); err != nil {
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}
	if payload.Key == "" {
		http.Error(rw, "missing key", http.StatusBadRequest)
		return
	}

	w.mu.Lock()
	w.events = append(w.events, models.BridgeEvent{
		Key:            payload.Key,
		Kind:           models.BridgeEventMessage,
		ActorID:        payload.ActorID,
		ConversationID: payload.ConversationID,
		CreatedAt:      time.Now(),
		Text:           payload.Text,
		Attachments:    payload.Attachments,
	})
	w.mu.Unlock()

	rw.WriteHeader(http.StatusAccepted)
}

func (w *WebhookReceiver) drain() []models.BridgeEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := w.events
	w.events = nil
	return events
}

// WebhookTransportConfig configures the generic outbound side of a
// webhook-sourced transport: replies are delivered by POSTing back to
// a per-conversation callback URL.
type WebhookTransportConfig struct {
	Receiver       *WebhookReceiver
	HTTPClient     *http.Client
	CallbackURL    func(event models.BridgeEvent) string
	MaxChunkChars  int
	RetryMax       int
	RetryBaseMS    int64
}

// NewWebhookTransport builds a Transport around a WebhookReceiver for
// Discover and an HTTP POST-back for replies; there is no editable
// placeholder for a generic webhook, so every chunk goes through
// PostNew (spec §4.5 step 6e's edit-then-create-append fallback
// degrades to always-create-append here).
func NewWebhookTransport(cfg WebhookTransportConfig) Transport {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxChunk := cfg.MaxChunkChars
	if maxChunk <= 0 {
		maxChunk = 16000
	}

	return Transport{
		Name:          "webhook",
		MaxChunkChars: maxChunk,
		Retry:         githubRetry(cfg.RetryMax, cfg.RetryBaseMS),
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) {
			return cfg.Receiver.drain(), nil
		},
		PostNew: func(ctx context.Context, event models.BridgeEvent, chunk string) error {
			url := cfg.CallbackURL(event)
			if url == "" {
				return fmt.Errorf("bridge/webhook: no callback url for conversation %q", event.ConversationID)
			}
			payload, err := json.Marshal(map[string]string{"text": chunk})
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := cfg.HTTPClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
				return fmt.Errorf("bridge/webhook: callback status %d: %s", resp.StatusCode, string(body))
			}
			return nil
		},
	}
}
