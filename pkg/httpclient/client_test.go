package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/appforge/engine/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func TestRequestSpacing(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	interval := 50 * time.Millisecond
	c := New(srv.URL, "tok", WithMinInterval(interval))

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := c.Do(ctx, http.MethodGet, "/", nil, nil)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 4)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		// allow a small scheduling tolerance
		require.GreaterOrEqual(t, gap, interval-5*time.Millisecond,
			"requests %d and %d started %s apart", i-1, i, gap)
	}
}

func TestRetryOn429ThenSuccess(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithMinInterval(time.Millisecond), WithRetry(3, time.Millisecond))
	raw, err := c.Do(context.Background(), http.MethodGet, "/", nil, nil)
	require.NoError(t, err)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.True(t, out.OK)
	require.Equal(t, 2, calls)
}

func TestRetryExhaustion(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithMinInterval(time.Millisecond), WithRetry(3, time.Millisecond))
	_, err := c.Do(context.Background(), http.MethodGet, "/", nil, nil)
	require.Error(t, err)
	require.Equal(t, 4, calls, "maxRetries+1 attempts")

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusTooManyRequests, he.StatusCode)
}

func TestErrorEmbedsDiagnostics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "invalid region"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithMinInterval(time.Millisecond))
	_, err := c.Do(context.Background(), http.MethodPost, "/projects", nil, map[string]string{"name": "x"})
	require.Error(t, err)

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, http.StatusBadRequest, he.StatusCode)
	require.Equal(t, http.MethodPost, he.Method)
	require.Contains(t, he.Endpoint, "/projects")
	require.Contains(t, he.Body, "invalid region")
	require.Contains(t, he.Error(), "invalid region")
}

func TestErrorBodyFallsBackToRawText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", WithMinInterval(time.Millisecond))
	_, err := c.Do(context.Background(), http.MethodGet, "/", nil, nil)

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, "upstream exploded", he.Body)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&HTTPError{StatusCode: http.StatusConflict}))
	require.True(t, IsConflict(&HTTPError{StatusCode: http.StatusBadRequest, Body: `{"error":"project already exists"}`}))
	require.False(t, IsConflict(&HTTPError{StatusCode: http.StatusInternalServerError, Body: "boom"}))
	require.False(t, IsConflict(context.DeadlineExceeded))
}
