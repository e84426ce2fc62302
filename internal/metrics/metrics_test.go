package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.ru/path", "example.ru"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"cyrillic host", "https://пример.рф/", "пример.рф"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	first := captchaOutcomesTotal
	Init()
	if captchaOutcomesTotal != first {
		t.Fatal("Init() replaced collectors on second call")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(captchaOutcomesTotal.WithLabelValues("TIMEOUT"))
	ObserveCaptcha("TIMEOUT")
	if got := testutil.ToFloat64(captchaOutcomesTotal.WithLabelValues("TIMEOUT")); got != before+1 {
		t.Errorf("captcha TIMEOUT counter = %f, want %f", got, before+1)
	}

	ObserveURL("https://Shop.Example.ru/contacts", "ok")
	if got := testutil.ToFloat64(urlsTotal.WithLabelValues("shop.example.ru", "ok")); got < 1 {
		t.Errorf("urls counter = %f, want >= 1", got)
	}

	IncInFlight()
	IncInFlight()
	DecInFlight()
	if got := testutil.ToFloat64(requestsInFlight); got != 1 {
		t.Errorf("in-flight gauge = %f, want 1", got)
	}
	DecInFlight()

	ObserveRequestDuration(3 * time.Second)
	if got := testutil.CollectAndCount(requestDurationSeconds); got != 1 {
		t.Errorf("duration histogram series = %d, want 1", got)
	}
}
