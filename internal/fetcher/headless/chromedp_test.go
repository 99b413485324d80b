package headless

import (
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	r, err := NewChromedp(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	require.NotNil(t, r.slots)
	require.Equal(t, 45*time.Second, r.cfg.NavigationTimeout)
	require.Equal(t, 500*time.Millisecond, r.cfg.SettleDelay)

	unbounded, err := NewChromedp(Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(unbounded.Close)
	require.Nil(t, unbounded.slots)
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeScript,
		Response: &network.Response{
			Status: 500,
			URL:    "https://example.com/app.js",
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://example.com/page",
			Headers: network.Headers{"ETag": `"r1"`, "Vary": []interface{}{"Accept", "Cookie"}},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 404,
			URL:    "https://example.com/iframe",
		},
	})

	status, headers, url := meta.snapshotWithFallbacks("https://example.com/page", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, `"r1"`, headers.Get("ETag"))
	require.Equal(t, []string{"Accept", "Cookie"}, headers.Values("Vary"))
	require.Equal(t, "https://example.com/page", url)
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	status, _, url := meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)

	_, _, url = meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, "https://req", url)
}
