// Package alert posts webhook notifications for events an operator needs to
// know about without watching logs: RCON authentication failures and Master
// Server iterations that time out.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kongor-net/agql/internal/config"
	"github.com/kongor-net/agql/internal/events"
)

// Notifier posts a JSON embed-style payload to a generic incoming webhook
// (Discord and Slack both accept this shape) whenever the EventBus reports
// one of the events it subscribes to.
type Notifier struct {
	cfg    config.AlertConfig
	client *http.Client
}

// NewNotifier creates a Notifier. It returns an error if alerting is
// disabled or no webhook URL is configured, so callers can skip wiring it
// into the EventBus entirely.
func NewNotifier(cfg config.AlertConfig) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("alerting disabled in config")
	}
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("alerting enabled but webhook_url is empty")
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Subscribe registers the Notifier's handlers on eventBus. Call once during
// startup, after NewNotifier succeeds.
func (n *Notifier) Subscribe(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventRCONAuthFailed, "alert.rconAuthFailed", n.onRCONAuthFailed)
	eventBus.Subscribe(events.EventMasterDone, "alert.masterTimeout", n.onMasterDone)
}

func (n *Notifier) onRCONAuthFailed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RCONAuthPayload)
	if !ok {
		return nil
	}
	return n.send(ctx, "RCON authentication failed", fmt.Sprintf("target: %s", payload.Addr), "error")
}

func (n *Notifier) onMasterDone(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MasterDonePayload)
	if !ok || !payload.TimedOut {
		return nil
	}
	return n.send(ctx, "master server iteration timed out",
		fmt.Sprintf("master: %s, entries collected: %d, err: %s", payload.MasterAddr, payload.Total, payload.Err),
		"warning")
}

// send posts title/message/level as a Discord-compatible webhook embed.
func (n *Notifier) send(ctx context.Context, title, message, level string) error {
	var color int
	switch level {
	case "error":
		color = 0xFF0000
	case "warning":
		color = 0xFFAA00
	default:
		color = 0x00FF00
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
				"footer":      map[string]string{"text": "agql"},
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	log.Debug().Str("title", title).Msg("webhook alert sent")
	return nil
}
