package endpoints_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline/flowline/common/endpoints"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestAdminEndpoints(t *testing.T) {
	stat := endpoints.MakeStatsReceiver("test")
	stat.Counter("requests").Inc(3)

	registry := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "flowline_test_gauge", Help: "test"})
	g.Set(7)
	registry.MustRegister(g)

	s := endpoints.NewServer("localhost:0", stat, registry)

	code, body := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, s, "/admin/metrics.json")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"test/requests": 3}`, body)

	code, body = get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "flowline_test_gauge 7")

	code, body = get(t, s, "/nowhere")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "/health")
}

func TestServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	s := endpoints.NewServer(ln.Addr().String(), endpoints.MakeStatsReceiver("test"), nil)

	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}
