package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
)

const statusCompleted = "completed"

// Payload is the JSON body posted to the webhook.
type Payload struct {
	RequestID    string `json:"requestId"`
	Status       string `json:"status"`
	OutputCSVURL string `json:"outputCsvUrl"`
}

// Webhook posts completion notices to a configured URL.
// Delivery is best-effort: failures are logged and never retried.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a Webhook. An empty url disables notifications.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

// Notify tells the webhook that requestID completed and where its report is.
func (w *Webhook) Notify(ctx context.Context, requestID uuid.UUID, outputURL string) {
	if w.url == "" {
		zlog.Logger.Debug().Str("request_id", requestID.String()).Msg("webhook not configured, skipping notification")
		return
	}

	if err := w.send(ctx, Payload{
		RequestID:    requestID.String(),
		Status:       statusCompleted,
		OutputCSVURL: outputURL,
	}); err != nil {
		zlog.Logger.Err(err).
			Str("request_id", requestID.String()).
			Str("webhook", w.url).
			Msg("failed to deliver completion notification")
		return
	}

	zlog.Logger.Info().Str("request_id", requestID.String()).Msg("completion notification delivered")
}

func (w *Webhook) send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}

	return nil
}
