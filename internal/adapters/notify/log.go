package notify

import (
	"context"
	"fmt"

	"cryptoPositionWatch/internal/ports"
)

// Compile-time check
var _ ports.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the log. Used when no Telegram bot is configured.
type LogNotifier struct {
	logger ports.Logger
}

func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrNotify, err)
	}
	n.logger.Info(ctx, "Notification", map[string]interface{}{"text": text})
	return nil
}

// New returns a Telegram notifier when a token is configured and a
// LogNotifier otherwise. A Telegram bot that fails to initialise is logged
// and replaced by the LogNotifier so closures are still recorded.
func New(ctx context.Context, cfg TelegramConfig) ports.Notifier {
	if cfg.Token == "" {
		cfg.Logger.Warn(ctx, "TELEGRAM_BOT_TOKEN not set, closure notifications go to the log")
		return NewLogNotifier(cfg.Logger)
	}
	tg, err := NewTelegram(cfg)
	if err != nil {
		cfg.Logger.Error(ctx, err, "Telegram notifier unavailable, falling back to log notifications")
		return NewLogNotifier(cfg.Logger)
	}
	return tg
}
