// Package publisher implements the sending side of the wire contract: it
// signs a JSON payload with the shared secret and POSTs it with the
// signature header. Retry is purely a client concern, driven by observing
// a non-200 response from the receiver.
package publisher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"hooksink/internal/webhook"
)

// DeliveryIDHeader carries a UUID identifying one logical delivery across
// retries.
const DeliveryIDHeader = "X-Delivery-ID"

const (
	defaultMaxRetries = 5
	defaultBackoff    = 100 * time.Millisecond
)

// Config holds publisher settings.
type Config struct {
	// URL is the receiver endpoint.
	URL string

	// Secret is the shared HMAC secret.
	Secret string

	// SignatureHeader defaults to X-HMAC-Signature.
	SignatureHeader string

	// MaxRetries is the number of retries after the first failed attempt
	// (default 5). Backoff grows linearly: attempt n sleeps n*Backoff.
	MaxRetries int

	// Backoff is the base retry delay (default 100ms).
	Backoff time.Duration
}

// StatusError reports a non-success response from the receiver.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded with %d status code", e.Code)
}

// Publisher signs and posts payloads to a receiver.
type Publisher struct {
	client *http.Client
	config Config
	logger *slog.Logger
}

// New creates a publisher. A nil client uses a default with a 10s timeout.
func New(client *http.Client, config Config, logger *slog.Logger) *Publisher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = webhook.DefaultSignatureHeader
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaultMaxRetries
	}
	if config.Backoff == 0 {
		config.Backoff = defaultBackoff
	}
	return &Publisher{client: client, config: config, logger: logger}
}

// Publish signs payload and posts it, retrying non-success responses up to
// MaxRetries times. The delivery ID stays stable across retries.
func (p *Publisher) Publish(ctx context.Context, payload []byte) error {
	deliveryID := uuid.NewString()

	var err error
	for attempt := 0; ; attempt++ {
		err = p.publishOnce(ctx, payload, deliveryID)
		if err == nil {
			return nil
		}
		if attempt == p.config.MaxRetries {
			return err
		}

		p.logger.Warn("publish failed, trying again",
			"delivery_id", deliveryID,
			"attempt", attempt+1,
			"error", err,
		)
		if serr := sleep(ctx, time.Duration(attempt)*p.config.Backoff); serr != nil {
			return serr
		}
	}
}

func (p *Publisher) publishOnce(ctx context.Context, payload []byte, deliveryID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(p.config.SignatureHeader, webhook.Signature(payload, p.config.Secret))
	req.Header.Set(DeliveryIDHeader, deliveryID)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
