package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/payportal/pkg/logger"
)

type TelegramNotificator struct {
	logger *logger.Logger
	bot    *bot.Bot
}

// NewTelegramNotificator connects the bot and starts polling for updates
// until ctx is cancelled.
func NewTelegramNotificator(ctx context.Context, logger *logger.Logger, token string) (*TelegramNotificator, error) {
	provider := &TelegramNotificator{
		logger: logger,
	}
	opts := []bot.Option{
		bot.WithDefaultHandler(provider.handler),
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	go b.Start(ctx)
	provider.bot = b

	return provider, nil
}

func (t *TelegramNotificator) SendNotification(chatId, message string) {
	params := &bot.SendMessageParams{
		ChatID: chatId,
		Text:   message,
	}
	_, err := t.bot.SendMessage(context.Background(), params)
	if err != nil {
		t.logger.Errorw("Failed to send telegram notification", "chatId", chatId, "error", err)
	}
}

// handler answers /start with the chat id to put into TELEGRAM_CHAT_ID.
func (t *TelegramNotificator) handler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	t.logger.Debugw("Telegram update", "username", update.Message.From.Username, "text", update.Message.Text)
	if update.Message.Text == "/start" {
		chatID := fmt.Sprint(update.Message.Chat.ID)
		t.SendNotification(chatID, "PayPortal alerts: set TELEGRAM_CHAT_ID="+chatID+" to receive notifications in this chat.")
	}
}
