package videos

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStreamOpenerOpen(t *testing.T) {
	payload := []byte("ID3\x03\x00fake-audio-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "streamer-test", r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "audio/mp4")
			w.Write(payload)
		case "/limited":
			w.Header().Set("Retry-After", "42")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	opener := &HTTPStreamOpener{Client: srv.Client(), UserAgent: "streamer-test"}
	ctx := context.Background()

	body, size, err := opener.Open(ctx, Format{Locator: srv.URL + "/ok"})
	require.NoError(t, err)
	defer body.Close()
	assert.EqualValues(t, len(payload), size)
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, _, err = opener.Open(ctx, Format{Locator: srv.URL + "/limited"})
	retryAfter, limited := AsRateLimited(err)
	require.True(t, limited, "expected rate limited, got %v", err)
	assert.Equal(t, 42*time.Second, retryAfter)

	_, _, err = opener.Open(ctx, Format{Locator: srv.URL + "/forbidden"})
	require.Error(t, err)
	_, limited = AsRateLimited(err)
	assert.False(t, limited)

	_, _, err = opener.Open(ctx, Format{})
	assert.ErrorIs(t, err, ErrFormatUnavailable)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))
	assert.Zero(t, parseRetryAfter("-5"))

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(future)
	assert.Greater(t, got, 60*time.Second)
	assert.LessOrEqual(t, got, 90*time.Second)
}
