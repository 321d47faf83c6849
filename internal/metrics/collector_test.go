package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercycle/tiercycle/internal/lifecycle"
	tierrors "github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/logging"
)

var _ lifecycle.Recorder = (*Collector)(nil)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := NewCollector(&Config{Enabled: true, Namespace: "tiercycle"}, logging.Discard())
	require.NoError(t, err)
	return c
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("nil config uses defaults", func(t *testing.T) {
		c, err := NewCollector(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, ":9090", c.config.Addr)
		assert.Equal(t, "/metrics", c.config.Path)
		assert.Equal(t, "tiercycle", c.config.Namespace)
		assert.NotNil(t, c.Registry())
	})

	t.Run("disabled config", func(t *testing.T) {
		c, err := NewCollector(&Config{Enabled: false}, nil)
		require.NoError(t, err)
		assert.Nil(t, c.Registry())

		// recording on a disabled collector is a no-op
		c.RecordOutcome("archived", "", time.Second, 10)
		c.RecordStoreOperation("s3", "copy", time.Millisecond, nil)
		c.AddInFlight(1)
		c.RecordRun("completed", time.Second, 1, 0)
		assert.Equal(t, "completed", c.LastRun().Status)
	})
}

func TestRecordOutcome(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.RecordOutcome("archived", "", 20*time.Millisecond, 2048)
	c.RecordOutcome("archived", "retire", 20*time.Millisecond, 2048)
	c.RecordOutcome("failed", "archive-upload", 5*time.Millisecond, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.objectsProcessed.WithLabelValues("archived", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.objectsProcessed.WithLabelValues("archived", "retire")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.objectsProcessed.WithLabelValues("failed", "archive-upload")))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	size := findFamily(families, "tiercycle_object_size_bytes")
	require.NotNil(t, size)
	assert.Equal(t, uint64(2), size.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.RecordRun("completed", 3*time.Second, 12, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.lastRunObjects.WithLabelValues("total")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.lastRunObjects.WithLabelValues("failed")))

	last := c.LastRun()
	assert.Equal(t, 12, last.Total)
	assert.Equal(t, 2, last.Failed)
	assert.False(t, last.Finished.IsZero())
}

func TestInFlight(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.AddInFlight(1)
	c.AddInFlight(1)
	c.AddInFlight(-1)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.objectsInFlight))
}

func TestRecordStoreOperation(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.RecordStoreOperation("azure", "copy", time.Millisecond, nil)
	c.RecordStoreOperation("azure", "copy", time.Millisecond, tierrors.Transient("503", nil))
	c.RecordStoreOperation("azure", "delete", time.Millisecond, tierrors.NotFound("backup", "a"))
	c.RecordRetry("azure", "copy")
	c.SetCircuitState("azure", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("azure", "copy", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("azure", "copy", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeErrors.WithLabelValues("azure", "copy", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeErrors.WithLabelValues("azure", "delete", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeRetries.WithLabelValues("azure", "copy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.circuitState.WithLabelValues("azure")))
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{tierrors.NotFound("c", "k"), "not_found"},
		{tierrors.NewError(tierrors.ErrCodeAccessDenied, "x"), "permission"},
		{tierrors.NewError(tierrors.ErrCodeThrottled, "x"), "throttling"},
		{tierrors.NewError(tierrors.ErrCodeCircuitOpen, "x"), "circuit_open"},
		{tierrors.Permanent("x", nil), "permanent"},
		{errors.New("mystery"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyError(tt.err), "%v", tt.err)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.RecordLock("acquired")
	c.RecordTrigger("cron")
	c.RecordRun("completed", time.Second, 4, 0)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Contains(t, body, `tiercycle_lock_attempts_total{result="acquired"} 1`)
	assert.Contains(t, body, `tiercycle_triggers_total{source="cron"} 1`)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health struct {
		Status  string      `json:"status"`
		LastRun RunSnapshot `json:"last_run"`
	}
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 4, health.LastRun.Total)
}

func TestMount(t *testing.T) {
	t.Parallel()

	c := newTestCollector(t)
	c.Mount("/ready", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	c, err := NewCollector(&Config{Enabled: true, Addr: "127.0.0.1:0"}, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.Stop(context.Background()))

	disabled, err := NewCollector(&Config{Enabled: false}, nil)
	require.NoError(t, err)
	assert.NoError(t, disabled.Start(context.Background()))
	assert.NoError(t, disabled.Stop(context.Background()))
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
