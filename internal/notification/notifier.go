// Package notification delivers user-facing events (triggered price alerts,
// support tickets, order fills) to external channels.
package notification

import (
	"context"
	"errors"
	"log"
)

// Level represents the severity of a message.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Message is a notification to be sent.
type Message struct {
	Level  Level          `json:"level"`
	Title  string         `json:"title"`
	Body   string         `json:"message"`
	UserID int64          `json:"user_id,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers a message. Returns error if delivery fails.
	Send(ctx context.Context, msg Message) error
}

// LogNotifier logs messages. It is always part of the server's chain.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	log.Printf("[notify] [%s] %s: %s", msg.Level, msg.Title, msg.Body)
	return nil
}

// Multi fans a message out to every backend. A failing backend does not stop
// the others; the joined error reports all failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config selects the backends built by New.
type Config struct {
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// New builds the notifier chain: log always, plus webhook and Telegram when
// configured.
func New(cfg Config) Multi {
	chain := Multi{NewLogNotifier()}
	if cfg.WebhookURL != "" {
		chain = append(chain, NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		chain = append(chain, NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	log.Printf("[notify] %d backend(s) configured", len(chain))
	return chain
}
