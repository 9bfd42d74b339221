// Package notify delivers best-effort operator alerts. Failures are
// logged and swallowed; nothing in the reconciliation path may depend on
// a notification going out.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

type Event struct {
	Kind        string `json:"kind"`
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	PaymentCode string `json:"payment_code,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
	Message     string `json:"message"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// TelegramSink posts events to a Telegram bot chat.
type TelegramSink struct {
	botToken   string
	chatID     string
	httpClient *http.Client
}

func NewTelegramSink(botToken, chatID string) *TelegramSink {
	return &TelegramSink{
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *TelegramSink) Notify(ctx context.Context, event Event) {
	if s.botToken == "" || s.chatID == "" {
		return
	}
	text := event.Message
	if text == "" {
		text = fmt.Sprintf("%s user=%s amount=%d ref=%s", event.Kind, event.UserID, event.Amount, event.ReferenceID)
	}
	body, _ := json.Marshal(map[string]string{
		"chat_id": s.chatID,
		"text":    text,
	})
	url := "https://api.telegram.org/bot" + s.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify: build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Printf("notify: send: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("notify: unexpected status %d", resp.StatusCode)
	}
}

// Noop discards every event. Used when no bot is configured and in tests.
type Noop struct{}

func (Noop) Notify(context.Context, Event) {}
