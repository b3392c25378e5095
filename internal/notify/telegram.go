package notify

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/operia/operia/internal/config"
)

// sendTimeout bounds every Telegram API call so a slow or unreachable API
// never stalls the caller, which may be an OAuth redirect.
const sendTimeout = 10 * time.Second

// Notifier sends one-off Telegram messages about sync outcomes. Disabled or
// misconfigured notifiers are silent no-ops; a failed send never fails a sync.
type Notifier struct {
	cfg config.TelegramConfig
}

// NewNotifier creates a notifier from configuration.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	return &Notifier{cfg: cfg}
}

// SyncCompleted announces a finished sync run.
func (n *Notifier) SyncCompleted(userID, provider string, proposals, saved int) {
	n.send(fmt.Sprintf("*Sync completed* for `%s` (%s)\nProposals: %d\nNew tasks: %d",
		userID, provider, proposals, saved))
}

// IntegrationConnected announces a newly connected integration.
func (n *Notifier) IntegrationConnected(userID, provider string) {
	n.send(fmt.Sprintf("*Integration connected*: %s for `%s`", provider, userID))
}

// send fires the message in the background. Callers sit on request paths and
// must not wait on the Telegram API.
func (n *Notifier) send(text string) {
	if !n.cfg.Enabled {
		return
	}
	go Notify(n.cfg.BotToken, n.cfg.ChatID, text)
}

// Notify sends a one-off message without requiring a running bot instance.
func Notify(token string, chatID int64, text string) {
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 || strings.TrimSpace(text) == "" {
		return
	}

	client := &http.Client{Timeout: sendTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	_, _ = bot.Send(msg)
}
