package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/evoloop/internal/logging"
)

func scrape(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestServe_ExposesMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := Serve(ctx, "127.0.0.1:0", logging.Discard())
	require.NoError(t, err)

	BestScore.Set(0.5)
	SlotScore.WithLabelValues("A").Set(0.25)
	ObserveBackendCall("judge", time.Now(), context.DeadlineExceeded)
	ObserveBackendCall("generator", time.Now(), errors.New("boom"))
	ObserveBackendCall("generator", time.Now(), nil)

	body := scrape(t, addr)
	assert.Contains(t, body, "evoloop_best_resolved_fraction 0.5")
	assert.Contains(t, body, `evoloop_slot_resolved_fraction{slot="A"} 0.25`)
	assert.Contains(t, body, `evoloop_backend_calls_total{outcome="timeout",role="judge"}`)
	assert.Contains(t, body, `evoloop_backend_calls_total{outcome="error",role="generator"}`)
	assert.Contains(t, body, `evoloop_backend_calls_total{outcome="ok",role="generator"}`)
}

func TestServe_BindError(t *testing.T) {
	_, err := Serve(context.Background(), "not-an-address", logging.Discard())
	assert.Error(t, err)
}
