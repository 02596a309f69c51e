package push

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramProvider delivers notifications to a Telegram chat. An alternative
// to Pushover when only a bot token is configured.
type TelegramProvider struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramProvider authenticates the bot against the Telegram API.
func NewTelegramProvider(token string, chatID int64) (*TelegramProvider, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramProvider{api: api, chatID: chatID}, nil
}

// Deliver sends one message with the offer link appended.
func (t *TelegramProvider) Deliver(_ context.Context, n Notification) error {
	text := n.Title + "\n" + n.Message
	if n.URL != "" {
		text += "\n" + n.URL
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
