package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embed colors per settlement event class.
const (
	colorResolved   = 0x2ecc71 // green: value paid out
	colorUnresolved = 0xe67e22 // orange: payouts reversed
	colorTrade      = 0x3498db // blue: routine trading activity
	colorAlert      = 0xe74c3c // red: ledger audit alerts
	colorDefault    = 0x95a5a6
)

// DiscordSender delivers settlement notifications via a Discord webhook,
// rendered as a single embed colored by event class.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL. It uses
// a default HTTP client with a 10-second timeout.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Send posts the notification to the Discord webhook as an embed.
func (d *DiscordSender) Send(ctx context.Context, event, title, message string) error {
	payload := map[string]any{
		"embeds": []discordEmbed{{
			Title:       title,
			Description: message,
			Color:       eventColor(event),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// eventColor maps a settlement event to its embed color.
func eventColor(event string) int {
	switch event {
	case "market_resolved":
		return colorResolved
	case "market_unresolved":
		return colorUnresolved
	case "bet_placed", "shares_sold":
		return colorTrade
	case EventAlert:
		return colorAlert
	default:
		return colorDefault
	}
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
