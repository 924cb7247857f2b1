// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adiadia/flowsim/internal/domain"
	"github.com/google/uuid"
)

const (
	webhookRetryAttempts = 3
	webhookRetryBase     = 300 * time.Millisecond
	webhookHeaderSig     = "X-Signature"
)

// Notifier is told about every record the journal has stored.
type Notifier interface {
	RunJournaled(ctx context.Context, rec domain.RunRecord)
}

type runEndedPayload struct {
	RunID     uuid.UUID         `json:"run_id"`
	SessionID uuid.UUID         `json:"session_id"`
	Demo      string            `json:"demo"`
	Fixture   string            `json:"fixture"`
	Mode      string            `json:"mode,omitempty"`
	Outcome   domain.RunOutcome `json:"outcome"`
	EndedAt   time.Time         `json:"ended_at"`
}

// Webhook posts ended runs to a URL, signing the body with HMAC-SHA256 when
// a secret is set. Failed deliveries are retried with exponential backoff.
type Webhook struct {
	url       string
	secret    string
	client    *http.Client
	logger    *slog.Logger
	retryBase time.Duration
}

// NewWebhook returns nil when url is blank.
func NewWebhook(url, secret string, client *http.Client, logger *slog.Logger) *Webhook {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:       url,
		secret:    secret,
		client:    client,
		logger:    logger,
		retryBase: webhookRetryBase,
	}
}

func (w *Webhook) RunJournaled(ctx context.Context, rec domain.RunRecord) {
	body, err := json.Marshal(runEndedPayload{
		RunID:     rec.ID,
		SessionID: rec.SessionID,
		Demo:      rec.Demo,
		Fixture:   rec.Fixture,
		Mode:      rec.Mode,
		Outcome:   rec.Outcome,
		EndedAt:   rec.EndedAt,
	})
	if err != nil {
		w.logger.Error("webhook payload marshal failed", "run_id", rec.ID, "error", err)
		return
	}

	signature := signPayload(w.secret, body)

	var lastErr error
	for attempt := 1; attempt <= webhookRetryAttempts; attempt++ {
		lastErr = w.post(ctx, body, signature)
		if lastErr == nil {
			w.logger.Debug("webhook delivered", "run_id", rec.ID, "attempt", attempt)
			return
		}
		w.logger.Warn("webhook failure",
			"run_id", rec.ID,
			"outcome", rec.Outcome,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt < webhookRetryAttempts {
			wait := w.retryBase * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				w.logger.Warn("webhook canceled before retry", "run_id", rec.ID, "error", ctx.Err())
				return
			case <-timer.C:
			}
		}
	}

	w.logger.Error("webhook retries exhausted", "run_id", rec.ID, "error", lastErr)
}

func (w *Webhook) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(webhookHeaderSig, signature)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}

func signPayload(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
