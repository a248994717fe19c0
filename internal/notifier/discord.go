package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	colorAlert = 16711680 // #FF0000
	colorDeals = 3066993  // #2ECC71

	// Embed descriptions are capped at 4096 characters.
	discordPageLimit = 4000
	// Webhooks allow 5 requests per 2 seconds.
	discordInterval = 400 * time.Millisecond
)

// Discord posts to a channel webhook. It carries operator alerts and the
// best deals digest.
type Discord struct {
	webhookURL  string
	color       int
	client      *http.Client
	rateLimiter *rate.Limiter
}

// NewDiscord returns a webhook client. An empty URL makes Post a no-op.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		webhookURL:  webhookURL,
		color:       colorAlert,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(discordInterval), 1),
	}
}

// WithDealsColor switches the embed color used for this channel.
func (c *Discord) WithDealsColor() *Discord {
	c.color = colorDeals
	return c
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Timestamp   string             `json:"timestamp,omitempty"`
	Color       int                `json:"color,omitempty"`
	Footer      discordEmbedFooter `json:"footer,omitempty"`
}

// formatEmbeds splits lines over as many embeds as needed. Only the first
// carries the title; later ones are numbered in the footer.
func formatEmbeds(title string, lines []string, color int, now time.Time) []discordEmbed {
	pages := Paginate(lines, discordPageLimit, "\n\n")
	embeds := make([]discordEmbed, len(pages))
	for i, page := range pages {
		e := discordEmbed{
			Description: page,
			Color:       color,
			Timestamp:   now.UTC().Format(time.RFC3339),
		}
		if i == 0 {
			e.Title = title
		}
		if len(pages) > 1 {
			e.Footer.Text = fmt.Sprintf("%d/%d", i+1, len(pages))
		}
		embeds[i] = e
	}
	return embeds
}

// Post sends title and lines, one message per embed page.
func (c *Discord) Post(ctx context.Context, title string, lines []string) error {
	if c.webhookURL == "" || len(lines) == 0 {
		return nil
	}
	for _, embed := range formatEmbeds(title, lines, c.color, time.Now()) {
		payload := discordWebhookPayload{Embeds: []discordEmbed{embed}}
		status, body, err := postJSON(ctx, c.client, c.rateLimiter, c.webhookURL, payload, func(resp *http.Response, _ []byte, attempt int) time.Duration {
			return retryBackoff(resp, attempt)
		})
		if err != nil {
			return fmt.Errorf("discord post failed: %w", err)
		}
		if status < 200 || status >= 300 {
			return fmt.Errorf("discord status: %d, body: %s", status, string(body))
		}
	}
	return nil
}
