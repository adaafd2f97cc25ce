package notifications

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TelegramNotifier delivers risk alerts to a Telegram chat. Alert levels map
// to distinct headers so breaker escalations stand out from routine notices.
type TelegramNotifier struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// header returns the decorated title for an alert level. The executor sends
// warning for mitigations and error for emergency flattens.
func header(level string) string {
	switch strings.ToLower(level) {
	case "warning":
		return "⚠️ *Risk Guard: Positions Reduced*"
	case "error":
		return "🚨 *Risk Guard: EMERGENCY*"
	case "success":
		return "✅ *Risk Guard: Recovered*"
	default:
		return "ℹ️ *Risk Guard*"
	}
}

func (t *TelegramNotifier) SendAlert(level, message string) error {
	body := fmt.Sprintf("%s\n\n%s\n\n_%s UTC_",
		header(level), message, time.Now().UTC().Format("2006-01-02 15:04:05"))

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", body)
	data.Set("parse_mode", "Markdown")

	resp, err := t.client.Post(apiURL, "application/x-www-form-urlencoded",
		strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}
