package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		retries   int
		wantErr   bool
		wantCalls int32
	}{
		{"ok", []int{200}, 2, false, 1},
		{"retry then ok", []int{503, 200}, 2, false, 2},
		{"rate limited then ok", []int{429, 200}, 2, false, 2},
		{"not found is permanent", []int{404, 200}, 2, true, 1},
		{"retries exhausted", []int{500, 500, 500, 500}, 2, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				status := tt.statuses[min(int(n)-1, len(tt.statuses)-1)]
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer srv.Close()

			c := NewClient(ClientOptions{RequestsPerSec: 100, MaxRetries: tt.retries, MaxRetryTimeout: 5 * time.Second})
			body, err := c.Get(context.Background(), srv.URL)

			if tt.wantErr {
				require.Error(t, err)
				var statusErr *HTTPStatusError
				assert.True(t, errors.As(err, &statusErr))
			} else {
				require.NoError(t, err)
				assert.JSONEq(t, `{"ok":true}`, string(body))
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestGetHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(ClientOptions{RequestsPerSec: 100, MaxRetries: 5})
	_, err := c.Get(ctx, srv.URL)
	require.Error(t, err)
}
