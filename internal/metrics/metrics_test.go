package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
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

func TestObservePage(t *testing.T) {
	before := testutil.ToFloat64(indexerPagesTotal.WithLabelValues("pages.example.com", "skipped", "http_404"))
	ObservePage("https://pages.example.com/a", "skipped", "http_404")
	ObservePage("https://PAGES.example.com/b", "skipped", "http_404")
	after := testutil.ToFloat64(indexerPagesTotal.WithLabelValues("pages.example.com", "skipped", "http_404"))
	require.Equal(t, before+2, after)
}

func TestObserveEmbedAndUpsert(t *testing.T) {
	okBefore := testutil.ToFloat64(embedCallsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(embedCallsTotal.WithLabelValues("error"))
	textsBefore := testutil.ToFloat64(embedTextsTotal)

	ObserveEmbed(3, time.Millisecond, nil)
	ObserveEmbed(5, time.Millisecond, errors.New("quota"))

	require.Equal(t, okBefore+1, testutil.ToFloat64(embedCallsTotal.WithLabelValues("ok")))
	require.Equal(t, errBefore+1, testutil.ToFloat64(embedCallsTotal.WithLabelValues("error")))
	require.Equal(t, textsBefore+3, testutil.ToFloat64(embedTextsTotal))

	recordsBefore := testutil.ToFloat64(upsertRecordsTotal)
	ObserveUpsert(100, time.Millisecond, nil)
	require.Equal(t, recordsBefore+100, testutil.ToFloat64(upsertRecordsTotal))
}

func TestActiveWorkersGauge(t *testing.T) {
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	require.Equal(t, before+1, testutil.ToFloat64(activeWorkers))
	DecActiveWorkers()
}

func TestMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	notFoundBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	for _, path := range []string{"/healthz", "/missing"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	require.Equal(t, okBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")))
	require.Equal(t, notFoundBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
