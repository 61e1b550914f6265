// Package notify delivers closure messages to humans.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cryptoPositionWatch/internal/ports"
)

// Compile-time check
var _ ports.Notifier = (*Telegram)(nil)

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Token       string
	ChatID      int64
	Logger      ports.Logger
	APIEndpoint string        // Defaults to tgbot.APIEndpoint
	HTTPTimeout time.Duration // Upper bound for one HTTP call; ctx usually expires first
}

// HTTPTimeoutWithin returns an HTTP client timeout that ends a call shortly
// before budget, the deadline callers put on Send.
func HTTPTimeoutWithin(budget time.Duration) time.Duration {
	if budget <= 0 {
		return 0
	}
	return budget - budget/10
}

// Telegram sends plain text messages to a single chat.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	logger ports.Logger
}

// NewTelegram authenticates the bot (getMe) and returns a notifier.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("%w: telegram token and chat id are required", ports.ErrValidation)
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbot.APIEndpoint
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	b, err := tgbot.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: telegram bot init: %w", ports.ErrNotify, err)
	}
	cfg.Logger.Info(context.Background(), "Telegram notifier ready", map[string]interface{}{
		"bot":    b.Self.UserName,
		"chatID": cfg.ChatID,
	})
	return &Telegram{bot: b, chatID: cfg.ChatID, logger: cfg.Logger}, nil
}

// Send delivers text to the configured chat. It returns when the message is
// accepted by Telegram or when ctx is done, whichever comes first.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if t == nil || t.bot == nil {
		return fmt.Errorf("%w: telegram notifier is not initialized", ports.ErrNotify)
	}

	type result struct {
		msg tgbot.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := t.bot.Send(tgbot.NewMessage(t.chatID, text))
		done <- result{msg: msg, err: err}
	}()

	// Delivery is at-least-once: the request keeps running after ctx is done
	// and may still be accepted, so the caller can send the message twice.
	// HTTPTimeout below the ctx deadline keeps that window small.
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: telegram send: %w", ports.ErrNotify, ctx.Err())
	case r := <-done:
		if r.err != nil {
			fields := map[string]interface{}{"chatID": t.chatID}
			var apiErr *tgbot.Error
			if errors.As(r.err, &apiErr) {
				fields["apiErrorCode"] = apiErr.Code
				if apiErr.RetryAfter > 0 {
					fields["retryAfter"] = apiErr.RetryAfter
				}
			}
			t.logger.Warn(ctx, "Telegram send failed", fields)
			return fmt.Errorf("%w: telegram send: %w", ports.ErrNotify, r.err)
		}
		t.logger.Debug(ctx, "Telegram message sent", map[string]interface{}{"messageID": r.msg.MessageID})
		return nil
	}
}
