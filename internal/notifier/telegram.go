package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/skuwatch/internal/models"
)

const (
	telegramAPI = "https://api.telegram.org"
	// Messages are capped at 4096 characters; leave room for entities.
	telegramPageLimit = 4090
	// The Bot API allows about 30 messages per second across chats.
	telegramRate = 25
)

// Telegram delivers subscriber notifications through the Bot API.
type Telegram struct {
	token       string
	apiBase     string
	client      *http.Client
	rateLimiter *rate.Limiter
}

func NewTelegram(token string) *Telegram {
	return &Telegram{
		token:       token,
		apiBase:     telegramAPI,
		client:      &http.Client{Timeout: 15 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(telegramRate), 1),
	}
}

// WithAPIBase points the client at another Bot API server.
func (t *Telegram) WithAPIBase(base string) *Telegram {
	t.apiBase = strings.TrimRight(base, "/")
	return t
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// telegramBackoff prefers the retry_after the API reports in the body.
func telegramBackoff(resp *http.Response, body []byte, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		var r telegramResponse
		if json.Unmarshal(body, &r) == nil && r.Parameters.RetryAfter > 0 {
			return time.Duration(r.Parameters.RetryAfter) * time.Second
		}
	}
	return retryBackoff(resp, attempt)
}

// Send delivers blocks to the subscriber's chat, paginated. Blocked bots,
// deactivated users and deleted chats yield models.ErrRecipientGone;
// failures worth retrying on the next pass yield models.ErrDeliveryTransient.
func (t *Telegram) Send(ctx context.Context, subscriberID string, blocks []string) error {
	if t.token == "" {
		return fmt.Errorf("%w: telegram bot token", models.ErrConfigurationMissing)
	}
	url := t.apiBase + "/bot" + t.token + "/sendMessage"

	for _, page := range Paginate(blocks, telegramPageLimit, "\n\n") {
		req := sendMessageRequest{
			ChatID:                subscriberID,
			Text:                  page,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		}
		status, body, err := postJSON(ctx, t.client, t.rateLimiter, url, req, telegramBackoff)
		if err != nil {
			return fmt.Errorf("%w: chat %s: %v", models.ErrDeliveryTransient, subscriberID, err)
		}
		if err := classifyTelegram(status, body); err != nil {
			return fmt.Errorf("chat %s: %w", subscriberID, err)
		}
	}
	return nil
}

func classifyTelegram(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var r telegramResponse
	_ = json.Unmarshal(body, &r)
	desc := r.Description
	if desc == "" {
		desc = string(body)
	}

	switch {
	case status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", models.ErrRecipientGone, desc)
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(desc), "chat not found"):
		return fmt.Errorf("%w: %s", models.ErrRecipientGone, desc)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d: %s", models.ErrDeliveryTransient, status, desc)
	}
	return fmt.Errorf("telegram rejected message: status %d: %s", status, desc)
}
