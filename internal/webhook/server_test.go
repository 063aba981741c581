package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

// fakeSink records deliveries for assertions.
type fakeSink struct {
	deliveries []Delivery
	err        error
}

func (f *fakeSink) Deliver(_ context.Context, d Delivery) error {
	if f.err != nil {
		return f.err
	}
	f.deliveries = append(f.deliveries, d)
	return nil
}

func newTestServer(secret string, sink Sink) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Listen: "127.0.0.1:0", Secret: secret}, sink, logger)
}

func postSigned(s *Server, path string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-HMAC-Signature", signature)
	}
	rec := httptest.NewRecorder()
	s.handleReceive(rec, req)
	return rec
}

func TestReceiveValidSignature(t *testing.T) {
	secret := "secret"
	body := []byte(`{"a":1}`)
	sink := &fakeSink{}
	s := newTestServer(secret, sink)

	rec := postSigned(s, "/webhook", body, Signature(body, secret))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("response body should be empty, got %q", rec.Body.String())
	}

	if len(sink.deliveries) != 1 {
		t.Fatalf("sink received %d deliveries, want 1", len(sink.deliveries))
	}
	d := sink.deliveries[0]
	want := map[string]any{"a": float64(1)}
	if !reflect.DeepEqual(d.Payload, want) {
		t.Errorf("Payload = %#v, want %#v", d.Payload, want)
	}
	if string(d.Raw) != string(body) {
		t.Errorf("Raw = %s, want %s", d.Raw, body)
	}
	if d.Path != "/webhook" {
		t.Errorf("Path = %q, want /webhook", d.Path)
	}
}

func TestReceiveTamperedSignature(t *testing.T) {
	secret := "secret"
	body := []byte(`{"a":1}`)
	sink := &fakeSink{}
	s := newTestServer(secret, sink)

	sig := Signature(body, secret)
	// Alter the last character of an otherwise correct digest.
	replacement := "f"
	if strings.HasSuffix(sig, "f") {
		replacement = "e"
	}
	altered := sig[:len(sig)-1] + replacement

	rec := postSigned(s, "/webhook", body, altered)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if len(sink.deliveries) != 0 {
		t.Error("sink must not receive unverified deliveries")
	}
}

func TestReceiveMissingSignature(t *testing.T) {
	sink := &fakeSink{}
	s := newTestServer("secret", sink)

	rec := postSigned(s, "/webhook", []byte(`{"a":1}`), "")

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if len(sink.deliveries) != 0 {
		t.Error("sink must not receive unverified deliveries")
	}
}

func TestReceiveInvalidJSON(t *testing.T) {
	secret := "secret"
	body := []byte(`not json`)
	sink := &fakeSink{}
	s := newTestServer(secret, sink)

	rec := postSigned(s, "/webhook", body, Signature(body, secret))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if rec.Body.Len() != 0 {
		t.Error("response body should be empty")
	}
	if len(sink.deliveries) != 0 {
		t.Error("sink must not receive unparsed deliveries")
	}
}

func TestReceiveTruncatedJSON(t *testing.T) {
	secret := "secret"
	body := []byte(`{"a":`)
	s := newTestServer(secret, &fakeSink{})

	rec := postSigned(s, "/webhook", body, Signature(body, secret))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestReceiveScalarJSON(t *testing.T) {
	// JSON scalars and arrays are valid payloads, not just objects.
	secret := "secret"
	for _, body := range []string{`42`, `"hello"`, `[1,2,3]`, `null`} {
		sink := &fakeSink{}
		s := newTestServer(secret, sink)

		rec := postSigned(s, "/webhook", []byte(body), Signature([]byte(body), secret))
		if rec.Code != http.StatusOK {
			t.Errorf("body %s: status = %d, want 200", body, rec.Code)
		}
	}
}

func TestReceiveIdempotent(t *testing.T) {
	secret := "secret"
	body := []byte(`{"a":1}`)
	sink := &fakeSink{}
	s := newTestServer(secret, sink)
	sig := Signature(body, secret)

	first := postSigned(s, "/webhook", body, sig)
	second := postSigned(s, "/webhook", body, sig)

	if first.Code != second.Code {
		t.Errorf("identical requests produced %d then %d", first.Code, second.Code)
	}
	if len(sink.deliveries) != 2 {
		t.Errorf("sink received %d deliveries, want 2", len(sink.deliveries))
	}
}

func TestReceiveMissingContentLength(t *testing.T) {
	s := newTestServer("secret", &fakeSink{})

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{"a":1}`))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	s.handleReceive(rec, req)

	if rec.Code != http.StatusLengthRequired {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusLengthRequired)
	}
}

func TestReceiveBodyTooLarge(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{Listen: "127.0.0.1:0", Secret: "secret", MaxBodySize: 16}, &fakeSink{}, logger)

	body := []byte(`{"padding":"aaaaaaaaaaaaaaaaaaaaaaaa"}`)
	rec := postSigned(s, "/webhook", body, Signature(body, "secret"))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestReceiveSinkFailure(t *testing.T) {
	secret := "secret"
	body := []byte(`{"a":1}`)
	sink := &fakeSink{err: errors.New("downstream unavailable")}
	s := newTestServer(secret, sink)

	rec := postSigned(s, "/webhook", body, Signature(body, secret))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestReceiveAnyPath(t *testing.T) {
	secret := "secret"
	body := []byte(`{"a":1}`)
	sink := &fakeSink{}
	s := newTestServer(secret, sink)
	sig := Signature(body, secret)

	// Routed through the real router: any POST path hits the receive handler.
	ts := httptest.NewServer(s.setupRoutes())
	defer ts.Close()

	for _, path := range []string{"/", "/webhook/playlog", "/deeply/nested/path"} {
		req, _ := http.NewRequest("POST", ts.URL+path, bytes.NewReader(body))
		req.Header.Set("X-HMAC-Signature", sig)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("POST %s: status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestHealthz(t *testing.T) {
	secret := "secret"
	body := []byte(`{"a":1}`)
	s := newTestServer(secret, &fakeSink{})

	postSigned(s, "/webhook", body, Signature(body, secret))

	rec := httptest.NewRecorder()
	s.handleHealthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var h HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&h); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("Status = %q, want ok", h.Status)
	}
	if h.ReceivedTotal != 1 {
		t.Errorf("ReceivedTotal = %d, want 1", h.ReceivedTotal)
	}
}

func TestConsoleSinkPrintsParsedValue(t *testing.T) {
	var buf bytes.Buffer
	sink := &ConsoleSink{Out: &buf}

	err := sink.Deliver(context.Background(), Delivery{
		Payload: map[string]any{"a": float64(1)},
	})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"a":1}` {
		t.Errorf("printed %q, want {\"a\":1}", got)
	}
}
