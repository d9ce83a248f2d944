// Package telegram sends best-effort notifications through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avelara/social-publisher/internal/auth"
)

const DefaultAPIBaseURL = "https://api.telegram.org"

// Client posts to one chat via one bot.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	botToken string
	chatID   string
}

func NewClient(botToken, chatID string) *Client {
	return &Client{
		BaseURL:    DefaultAPIBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		botToken:   botToken,
		chatID:     chatID,
	}
}

// SendMessage posts a text message to the configured chat.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id": c.chatID,
		"text":    text,
	})
}

// SendPhoto posts a photo by URL with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, photoURL, caption string) error {
	payload := map[string]any{
		"chat_id": c.chatID,
		"photo":   photoURL,
	}
	if caption != "" {
		payload["caption"] = caption
	}
	return c.call(ctx, "sendPhoto", payload)
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to encode %s payload: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.BaseURL, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram: %s: %w", method, auth.ReadRequestError(resp))
	}

	var parsed struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("telegram: failed to decode %s response: %w", method, err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram: %s rejected: %s", method, parsed.Description)
	}
	return nil
}
