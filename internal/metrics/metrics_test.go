package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestCounters(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.StorageRetries.WithLabelValues("test"))
	m.StorageRetries.WithLabelValues("test").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(m.StorageRetries.WithLabelValues("test")))
}

func TestServerExposesMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := NewServer(addr, nil)
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	Get().SyncCursor.Set(42)

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, string(body), "clipsync_sync_cursor 42")
}
