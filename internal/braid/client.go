// Package braid is the chat-platform client: message delivery,
// nickname resolution, and thread subscription against the bot API.
package braid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/braidchat/octocat/internal/message"
)

// Chatter is the outbound chat contract the router and interpreter
// depend on.
type Chatter interface {
	// SendMessage delivers a message into an existing thread, or opens
	// a new tagged thread when the message carries a fresh thread id.
	SendMessage(ctx context.Context, m message.Message) error

	// Nickname resolves a user's display name. Unknown users return
	// ("", nil); callers choose their own fallback label.
	Nickname(ctx context.Context, userID string) (string, error)

	// Subscribe registers the bot for future messages in a thread.
	Subscribe(ctx context.Context, threadID string) error
}

// Client is the HTTP implementation of Chatter. Requests authenticate
// with basic auth (bot app id / token); message bodies use the
// platform's binary map encoding.
type Client struct {
	httpClient *http.Client
	apiURL     string
	appID      string
	token      string
}

// NewClient creates a chat client for the bot API rooted at apiURL.
func NewClient(apiURL, appID, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		apiURL:     strings.TrimRight(apiURL, "/"),
		appID:      appID,
		token:      token,
	}
}

func (c *Client) SendMessage(ctx context.Context, m message.Message) error {
	body, err := message.Encode(m)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.apiURL+"/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	req.Header.Set("Content-Type", "application/transit+msgpack")
	req.SetBasicAuth(c.appID, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send message: chat API status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) Nickname(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/names/"+userID, nil)
	if err != nil {
		return "", fmt.Errorf("nickname: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.appID, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("nickname: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nickname: chat API status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("nickname: read response: %w", err)
	}
	var parsed struct {
		Nick string `json:"nick"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("nickname: parse response: %w", err)
	}
	return parsed.Nick, nil
}

func (c *Client) Subscribe(ctx context.Context, threadID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.apiURL+"/subscribe/"+threadID, nil)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	req.SetBasicAuth(c.appID, c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("subscribe: chat API status %d", resp.StatusCode)
	}
	return nil
}

// ThreadURL builds the permalink for a chat thread, used in issue
// bodies and comment annotations.
func ThreadURL(siteURL, groupID, threadID string) string {
	return fmt.Sprintf("%s/%s/thread/%s", strings.TrimRight(siteURL, "/"), groupID, threadID)
}
