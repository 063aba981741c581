package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Delivery is one verified, successfully parsed webhook payload.
type Delivery struct {
	// Path is the request path the payload was posted to.
	Path string `json:"path"`

	// ReceivedAt is when the request was accepted.
	ReceivedAt time.Time `json:"received_at"`

	// Raw is the exact body bytes the signature was verified over.
	Raw json.RawMessage `json:"raw"`

	// Payload is the decoded JSON value (object, array, or scalar).
	Payload any `json:"payload"`
}

// Sink consumes accepted deliveries. The receiver performs no retries;
// a sink error fails the single request and nothing else.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// ConsoleSink prints each accepted payload to an output stream, one
// compact JSON value per line.
type ConsoleSink struct {
	Out io.Writer
}

func (s *ConsoleSink) Deliver(_ context.Context, d Delivery) error {
	data, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("failed to render payload: %w", err)
	}
	_, err = fmt.Fprintln(s.Out, string(data))
	return err
}

// Config holds webhook server configuration.
type Config struct {
	// Listen is the bind address, e.g. ":8000".
	Listen string

	// Secret is the shared HMAC secret. Requests are rejected when empty.
	Secret string

	// SignatureHeader is the HTTP header carrying the hex digest
	// (default "X-HMAC-Signature").
	SignatureHeader string

	// MaxBodySize is the maximum allowed request body size in bytes
	// (default 1MB).
	MaxBodySize int64

	// EventBuffer is the live-stream ring capacity (default 100).
	EventBuffer int
}

// Default values applied by New.
const (
	DefaultSignatureHeader = "X-HMAC-Signature"
	DefaultMaxBodySize     = 1048576 // 1 MB
	DefaultEventBuffer     = 100
)

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ReceivedTotal int64  `json:"received_total"`
}
