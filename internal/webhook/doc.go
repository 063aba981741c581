// Package webhook implements an HTTP receiver for HMAC-SHA256 signed
// webhook deliveries.
//
// # Security Model
//
// - HMAC-SHA256 signatures verified using crypto/subtle (constant-time comparison)
// - The digest covers the exact raw body bytes, computed before any parsing
// - Body size limits enforced to prevent unbounded allocation
// - No signature details leaked in responses (always a bare 403)
// - Request logging excludes payload content
// - Secrets injected via configuration or environment (never hardcoded)
//
// # Request Flow
//
//  1. HTTP POST arrives on any path
//  2. Declared Content-Length required (reject with 411 if absent)
//  3. Body read up to the configured cap (reject with 413 if exceeded)
//  4. HMAC-SHA256 computed over the raw body
//  5. Constant-time comparison against the signature header (403 on mismatch)
//  6. Body parsed as JSON (400 on parse failure)
//  7. Parsed value handed to the configured Sink; 200 returned
//
// Every receive-path response carries Content-Type text/plain and an empty
// body. Errors are per-request and never fatal to the server; retry is the
// sending client's concern, driven by observing a non-200 status.
//
// # Example Usage
//
//	cfg := webhook.Config{
//		Listen: ":8000",
//		Secret: os.Getenv("HOOKSINK_SECRET"),
//	}
//	server := webhook.New(cfg, &webhook.ConsoleSink{Out: os.Stdout}, logger)
//	if err := server.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
