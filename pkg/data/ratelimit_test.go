package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nwflabs/nwf/pkg/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitWait(t *testing.T) {
	for attempt := 0; attempt <= rateLimitMaxRetries; attempt++ {
		base := rateLimitBaseWait << attempt
		w := rateLimitWait(attempt)
		assert.GreaterOrEqual(t, w, base)
		assert.Less(t, w, base+rateLimitJitterMillis*time.Millisecond)
	}
}

func TestGetJSONThrottledPassthrough(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"page":1}`))
	}))
	defer srv.Close()

	var res quotesPage
	err := getJSONThrottled(context.Background(), srv.Client(), srv.URL, &res)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetJSONThrottledNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var res quotesPage
	err := getJSONThrottled(context.Background(), srv.Client(), srv.URL, &res)
	assert.ErrorIs(t, err, net.ErrorURLNotFound)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetJSONThrottledCanceled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	var res quotesPage
	err := getJSONThrottled(ctx, srv.Client(), srv.URL, &res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), hits.Load())
}
