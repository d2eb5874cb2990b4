package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "/", want: "/"},
		{in: "/healthz", want: "/healthz"},
		{in: "/api/streams/live", want: "/api/streams/live"},
		{in: "/api/streams/transcode", want: "/api/streams/transcode"},
		{in: "/api/streams/abc123", want: "/api/streams/:channel"},
		{in: "/api/streams/abc123/archive", want: "/api/streams/:channel/archive"},
		{in: "/api/signature/verify", want: "/api/signature/verify"},
	}
	for _, tc := range cases {
		if got := normalizePath(tc.in); got != tc.want {
			t.Fatalf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStatusText(t *testing.T) {
	if got := statusText(200); got != "200" {
		t.Fatalf("statusText(200) = %q", got)
	}
	if got := statusText(503); got != "503" {
		t.Fatalf("statusText(503) = %q", got)
	}
	if got := statusText(42); got != "unknown" {
		t.Fatalf("statusText(42) = %q", got)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("POST", "/api/streams/live", 200, 12*time.Millisecond)
	recorder.LifecycleEvent("live")
	recorder.VerificationResult("valid")
	recorder.ArchiveReport(false)
	recorder.UnknownChannel("check_archive")

	gaugeUpdated := false
	handler := recorder.Handler(func() {
		gaugeUpdated = true
		recorder.SetLiveChannels(3)
	})

	response := httptest.NewRecorder()
	handler.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if response.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", response.Code)
	}
	if !gaugeUpdated {
		t.Fatalf("gauge update hook not invoked before scrape")
	}

	body := response.Body.String()
	for _, want := range []string{
		`media_http_requests_total{method="POST",path="/api/streams/live",status="200"} 1`,
		`media_stream_lifecycle_events_total{event="live"} 1`,
		`media_signature_verifications_total{outcome="valid"} 1`,
		`media_archive_reports_total{outcome="error"} 1`,
		`media_unknown_channel_total{operation="check_archive"} 1`,
		`media_live_channels 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape output missing %q:\n%s", want, body)
		}
	}
}

func TestDefaultIsSingleton(t *testing.T) {
	if Default() != Default() {
		t.Fatalf("Default must return the same recorder")
	}
}
