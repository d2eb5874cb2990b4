package signature

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newCaptureLogger() (*slog.Logger, *bytes.Buffer) {
	buffer := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buffer, nil)), buffer
}

func newTestClient(t *testing.T, url string, logger *slog.Logger) *Client {
	t.Helper()
	client, err := NewClient(Config{URL: url, Logger: logger})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error for missing URL")
	}
}

func TestVerifyValidSignature(t *testing.T) {
	var got rpcRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"is_valid":true}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	if !client.Verify(context.Background(), "abc123", "deadbeef", "sig-value", "1700000000") {
		t.Fatalf("expected valid result")
	}
	if got.Method != "verify.Signature" {
		t.Fatalf("method = %q, want verify.Signature", got.Method)
	}
	if got.Params.ChannelID != "abc123" || got.Params.DataHex != "deadbeef" {
		t.Fatalf("unexpected params: %+v", got.Params)
	}
	if got.Params.Signature != "sig-value" || got.Params.SigningTS != "1700000000" {
		t.Fatalf("unexpected params: %+v", got.Params)
	}
}

func TestVerifyRejectedSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"is_valid":false}}`))
	}))
	defer server.Close()

	logger, buffer := newCaptureLogger()
	client := newTestClient(t, server.URL, logger)
	if client.Verify(context.Background(), "abc123", "deadbeef", "sig", "ts") {
		t.Fatalf("expected rejection")
	}
	if !strings.Contains(buffer.String(), "signature rejected") {
		t.Fatalf("expected rejection log, got %q", buffer.String())
	}
}

func TestVerifyEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger, buffer := newCaptureLogger()
	client := newTestClient(t, server.URL, logger)
	if client.Verify(context.Background(), "abc123", "deadbeef", "sig", "ts") {
		t.Fatalf("empty response must resolve to false")
	}
	if !strings.Contains(buffer.String(), "empty response") {
		t.Fatalf("expected empty-response log, got %q", buffer.String())
	}
}

func TestVerifyMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":`))
	}))
	defer server.Close()

	logger, buffer := newCaptureLogger()
	client := newTestClient(t, server.URL, logger)
	if client.Verify(context.Background(), "abc123", "deadbeef", "sig", "ts") {
		t.Fatalf("malformed response must resolve to false")
	}
	if !strings.Contains(buffer.String(), "malformed response") {
		t.Fatalf("expected malformed-response log, got %q", buffer.String())
	}
}

func TestVerifyMissingResultAndError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	logger, buffer := newCaptureLogger()
	client := newTestClient(t, server.URL, logger)
	if client.Verify(context.Background(), "abc123", "deadbeef", "sig", "ts") {
		t.Fatalf("response without result or error must resolve to false")
	}
	if !strings.Contains(buffer.String(), "malformed response") {
		t.Fatalf("expected malformed-response log, got %q", buffer.String())
	}
}

func TestVerifyRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"channel not found"}}`))
	}))
	defer server.Close()

	logger, buffer := newCaptureLogger()
	client := newTestClient(t, server.URL, logger)
	if client.Verify(context.Background(), "abc123", "deadbeef", "sig", "ts") {
		t.Fatalf("remote error must resolve to false")
	}
	if !strings.Contains(buffer.String(), "remote error") {
		t.Fatalf("expected remote-error log, got %q", buffer.String())
	}
	if !strings.Contains(buffer.String(), "channel not found") {
		t.Fatalf("expected remote message in log, got %q", buffer.String())
	}
}

func TestVerifyTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	logger, buffer := newCaptureLogger()
	client := newTestClient(t, server.URL, logger)
	if client.Verify(context.Background(), "abc123", "deadbeef", "sig", "ts") {
		t.Fatalf("transport error must resolve to false")
	}
	if !strings.Contains(buffer.String(), "transport error") {
		t.Fatalf("expected transport-error log, got %q", buffer.String())
	}
}

func TestVerifyHonorsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	logger, _ := newCaptureLogger()
	client, err := NewClient(Config{URL: server.URL, Timeout: 50 * time.Millisecond, Logger: logger})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	start := time.Now()
	if client.Verify(context.Background(), "abc123", "deadbeef", "sig", "ts") {
		t.Fatalf("timed-out verification must resolve to false")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("verification did not respect timeout, took %v", elapsed)
	}
}
