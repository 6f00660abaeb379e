package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MessageSender is the part of the Telegram bot API the notifier uses.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts run reports to a single chat.
type Telegram struct {
	api    MessageSender
	chatID int64
	logger *zap.Logger
}

// NewTelegram authorizes the bot token and returns a notifier for chatID.
func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	return NewTelegramWithSender(botAPI, chatID, logger), nil
}

// NewTelegramWithSender builds a notifier around an existing sender.
func NewTelegramWithSender(api MessageSender, chatID int64, logger *zap.Logger) *Telegram {
	return &Telegram{api: api, chatID: chatID, logger: logger}
}

// Notify sends the report text to the configured chat.
func (t *Telegram) Notify(ctx context.Context, r Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, r.Text())
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		t.logger.Error("Failed to send run notification",
			zap.Int64("chat_id", t.chatID),
			zap.String("run_id", r.RunID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send notification: %w", err)
	}

	t.logger.Info("Run notification sent",
		zap.Int64("chat_id", t.chatID),
		zap.String("run_id", r.RunID),
	)
	return nil
}
