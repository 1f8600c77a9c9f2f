package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// TelegramNotifier sends plain-text messages to one chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier authorizes the bot token against endpoint, which has the
// form of tgbotapi.APIEndpoint. An empty endpoint uses the public Bot API.
func NewTelegramNotifier(token, chatID, endpoint string) (*TelegramNotifier, error) {
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("telegram bot token or chat id is not configured")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	log.Infof("Authorized on telegram account %s", api.Self.UserName)

	return &TelegramNotifier{api: api, chatID: id}, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, message)

	sent, err := t.api.Send(msg)
	if err != nil {
		if neverSent(err) {
			return fmt.Errorf("%w: error sending message to telegram chat %d: %w", ErrNotDelivered, t.chatID, err)
		}
		return fmt.Errorf("error sending message to telegram chat %d: %w", t.chatID, err)
	}
	log.Infof("Telegram message sent: %d", sent.MessageID)
	return nil
}
