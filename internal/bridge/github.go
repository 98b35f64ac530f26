package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haasonsaas/tau/pkg/models"
)

// GitHubTransportConfig configures the GitHub issues polling transport.
type GitHubTransportConfig struct {
	HTTPClient    *http.Client
	BaseURL       string // defaults to https://api.github.com
	Owner, Repo   string
	Token         string
	RequiredLabel string // "" = no label filter
	MaxChunkChars int
	RetryMax      int
	RetryBaseMS   int64
}

// NewGitHubTransport builds a Transport that polls a repository's
// issues for new comments/issues (spec §4.5 "Discover: paginated GET
// for REST"). No GitHub API client appears in any retained example
// repo, so this transport is built directly on net/http — see
// DESIGN.md for the justification.
func NewGitHubTransport(cfg GitHubTransportConfig) Transport {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	maxChunk := cfg.MaxChunkChars
	if maxChunk <= 0 {
		maxChunk = 65000
	}
	cursor := &githubCursor{}

	return Transport{
		Name:          "github",
		MaxChunkChars: maxChunk,
		Retry:         githubRetry(cfg.RetryMax, cfg.RetryBaseMS),
		Discover: func(ctx context.Context) ([]models.BridgeEvent, error) {
			return discoverGitHubIssues(ctx, cfg, baseURL, cursor)
		},
		PostNew: func(ctx context.Context, event models.BridgeEvent, chunk string) error {
			return postGitHubComment(ctx, cfg, baseURL, event, chunk)
		},
	}
}

type githubCursor struct {
	since string // RFC3339
}

type githubIssue struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	UpdatedAt string `json:"updated_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func discoverGitHubIssues(ctx context.Context, cfg GitHubTransportConfig, baseURL string, cursor *githubCursor) ([]models.BridgeEvent, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues?state=open&sort=updated&direction=asc&per_page=100", baseURL, cfg.Owner, cfg.Repo)
	if cursor.since != "" {
		url += "&since=" + cursor.since
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	applyGitHubAuth(req, cfg.Token)

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge/github: list issues: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
		return nil, fmt.Errorf("bridge/github: list issues: status %d: %s", resp.StatusCode, string(body))
	}

	var issues []githubIssue
	if err := json.NewDecoder(resp.Body).Decode(&issues); err != nil {
		return nil, fmt.Errorf("bridge/github: decode issues: %w", err)
	}

	events := make([]models.BridgeEvent, 0, len(issues))
	var newest time.Time
	for _, issue := range issues {
		if cfg.RequiredLabel != "" && !hasGitHubLabel(issue, cfg.RequiredLabel) {
			continue
		}
		updatedAt, _ := time.Parse(time.RFC3339, issue.UpdatedAt)
		events = append(events, models.BridgeEvent{
			Key:            fmt.Sprintf("%s/%s#%d@%s", cfg.Owner, cfg.Repo, issue.Number, issue.UpdatedAt),
			Kind:           models.BridgeEventComment,
			ActorID:        issue.User.Login,
			ConversationID: fmt.Sprintf("%s/%s#%d", cfg.Owner, cfg.Repo, issue.Number),
			CreatedAt:      updatedAt,
			Text:           issue.Title + "\n\n" + issue.Body,
		})
		if updatedAt.After(newest) {
			newest = updatedAt
		}
	}
	if !newest.IsZero() {
		cursor.since = newest.UTC().Format(time.RFC3339)
	}
	return events, nil
}

func hasGitHubLabel(issue githubIssue, label string) bool {
	for _, l := range issue.Labels {
		if l.Name == label {
			return true
		}
	}
	return false
}

func postGitHubComment(ctx context.Context, cfg GitHubTransportConfig, baseURL string, event models.BridgeEvent, chunk string) error {
	var number string
	fmt.Sscanf(event.ConversationID, cfg.Owner+"/"+cfg.Repo+"#%s", &number)

	url := fmt.Sprintf("%s/repos/%s/%s/issues/%s/comments", baseURL, cfg.Owner, cfg.Repo, number)
	payload, err := json.Marshal(map[string]string{"body": chunk})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	applyGitHubAuth(req, cfg.Token)

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge/github: post comment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2000))
		return fmt.Errorf("bridge/github: post comment: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func applyGitHubAuth(req *http.Request, token string) {
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
}
