package alert

import (
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const telegramAPIURL = "https://api.telegram.org"

// Notifier delivers operator alerts over Telegram. Delivery is best-effort:
// failures are logged and never propagate to the decision loop.
type Notifier struct {
	client  *resty.Client
	token   string
	chatID  string
	enabled bool
	logger  *zap.Logger
}

// NewNotifier creates a Notifier. Credentials come from the environment
// (TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID); when they are missing the notifier
// degrades to log-only.
func NewNotifier(enabled bool, logger *zap.Logger) *Notifier {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID")

	if enabled && (token == "" || chatID == "") {
		logger.Warn("Telegram credentials not configured, alerts will be log-only")
		enabled = false
	}

	return &Notifier{
		client:  resty.New().SetBaseURL(telegramAPIURL).SetTimeout(10 * time.Second),
		token:   token,
		chatID:  chatID,
		enabled: enabled,
		logger:  logger,
	}
}

// Send delivers an alert asynchronously. It returns immediately; the caller
// is never blocked on delivery.
func (n *Notifier) Send(message, subject string) {
	n.logger.Info("ALERT", zap.String("subject", subject), zap.String("message", message))
	if !n.enabled {
		return
	}
	go n.sendTelegram(message, subject)
}

func (n *Notifier) sendTelegram(message, subject string) {
	resp, err := n.client.R().
		SetBody(map[string]string{
			"chat_id":    n.chatID,
			"text":       fmt.Sprintf("%s\n\n%s", subject, message),
			"parse_mode": "HTML",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.token))
	if err != nil {
		n.logger.Error("Failed to send Telegram alert", zap.Error(err))
		return
	}
	if resp.IsError() {
		n.logger.Warn("Telegram API error", zap.Int("status", resp.StatusCode()))
	}
}
