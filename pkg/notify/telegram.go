package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TelegramAdapter sends notifications via a Telegram bot. Gate responses
// come back through the HTTP API, not the chat, so this adapter is
// send-only.
type TelegramAdapter struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	// BotToken is the Telegram bot token from @BotFather
	BotToken string

	// ChatID is the chat/user ID to send messages to
	ChatID string

	// BaseURL overrides the Telegram API endpoint (used in tests)
	BaseURL string
}

// NewTelegramAdapter creates a Telegram adapter.
func NewTelegramAdapter(cfg TelegramConfig) (*TelegramAdapter, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if cfg.ChatID == "" {
		return nil, fmt.Errorf("chat ID is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramAdapter{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the adapter name.
func (t *TelegramAdapter) Name() string {
	return "telegram"
}

// Send sends a notification via Telegram.
func (t *TelegramAdapter) Send(ctx context.Context, event *Event) error {
	var msg strings.Builder

	switch event.Type {
	case EventGateOpened:
		msg.WriteString("🔔 *Gate Opened*\n\n")
	case EventGateReminder:
		msg.WriteString("⏳ *Gate Reminder*\n\n")
	case EventGateEscalated:
		msg.WriteString("⬆️ *Gate Escalated*\n\n")
	case EventGateTimedOut:
		msg.WriteString("⛔ *Gate Timed Out*\n\n")
	case EventKill:
		msg.WriteString("💀 *Experiment Killed*\n\n")
	}

	msg.WriteString("*")
	msg.WriteString(escapeMarkdown(event.Title))
	msg.WriteString("*\n\n")
	msg.WriteString(escapeMarkdown(event.Message))

	if event.ExperimentID != "" {
		msg.WriteString("\n\n_Experiment: ")
		msg.WriteString(event.ExperimentID)
		msg.WriteString("_")
	}
	if event.Assignee != "" {
		msg.WriteString("\n_Assignee: ")
		msg.WriteString(event.Assignee)
		msg.WriteString("_")
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       msg.String(),
		"parse_mode": "Markdown",
	}

	return t.sendRequest(ctx, "sendMessage", payload)
}

func (t *TelegramAdapter) sendRequest(ctx context.Context, method string, payload map[string]interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: %s", string(body))
	}

	return nil
}

// Close closes the adapter.
func (t *TelegramAdapter) Close() error {
	return nil
}

// escapeMarkdown escapes Telegram Markdown special characters.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
