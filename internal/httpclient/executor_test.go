package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/authr-client/internal/metrics"
)

func newExec(client *http.Client) *Executor {
	return New(zap.NewNop(), client, "test", 0)
}

// ─── Basic success ────────────────────────────────────────────────────────────

func TestDo_CapturesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	res, err := newExec(srv.Client()).Do(context.Background(), "test", req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"result":"ok"}`, string(res.Body))
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
}

// ─── Error statuses are results, not errors ───────────────────────────────────

func TestDo_4xxAnd5xxAreNotErrors(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`"unauthorized"`))
		}))

		req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
		res, err := newExec(srv.Client()).Do(context.Background(), "test", req)
		require.NoError(t, err)
		assert.Equal(t, status, res.StatusCode)
		assert.Equal(t, `"unauthorized"`, string(res.Body))
		srv.Close()
	}
}

// ─── No retry ─────────────────────────────────────────────────────────────────

func TestDo_SingleAttemptOn5xx(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := newExec(srv.Client()).Do(context.Background(), "test", req)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count.Load(), "executor must never retry")
}

// ─── Headers ──────────────────────────────────────────────────────────────────

func TestDo_SetsRequestIDAndAccept(t *testing.T) {
	var gotID, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(RequestIDHeader)
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	res, err := newExec(srv.Client()).Do(context.Background(), "test", req)
	require.NoError(t, err)
	assert.NotEmpty(t, gotID)
	assert.Equal(t, gotID, res.RequestID)
	assert.Equal(t, "application/json", gotAccept)
}

func TestDo_KeepsCallerRequestID(t *testing.T) {
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(RequestIDHeader)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	_, err := newExec(srv.Client()).Do(context.Background(), "test", req)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", gotID)
}

// ─── POST body delivered ──────────────────────────────────────────────────────

func TestDo_PostBodyDelivered(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received = string(b)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, bytes.NewReader([]byte(`{"value":"hello"}`)))
	_, err := newExec(srv.Client()).Do(context.Background(), "test", req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"hello"}`, received)
}

// ─── Transport failures ───────────────────────────────────────────────────────

func TestDo_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	counter := metrics.TransportErrors.WithLabelValues("refused", http.MethodGet)
	before := testutil.ToFloat64(counter)
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	_, err := newExec(nil).Do(context.Background(), "refused", req)
	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestDo_TimeoutIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), srv.Client(), "test", 50*time.Millisecond)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := exec.Do(context.Background(), "test", req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDo_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := newExec(srv.Client()).Do(ctx, "test", req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// ─── Metrics ──────────────────────────────────────────────────────────────────

func TestDo_CountsRequestsByStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	counter := metrics.RequestsTotal.WithLabelValues("counted", http.MethodPost, "401")
	before := testutil.ToFloat64(counter)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/counted", nil)
	_, err := newExec(srv.Client()).Do(context.Background(), "counted", req)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestDo_LabelsByRouteNotPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	counter := metrics.RequestsTotal.WithLabelValues("todo-item", http.MethodGet, "200")
	before := testutil.ToFloat64(counter)
	series := testutil.CollectAndCount(metrics.RequestsTotal)

	for _, path := range []string{"/todo/1", "/todo/2", "/todo/3"} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		_, err := newExec(srv.Client()).Do(context.Background(), "todo-item", req)
		require.NoError(t, err)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
	assert.Equal(t, series, testutil.CollectAndCount(metrics.RequestsTotal), "distinct paths must not add series")
}

func TestDo_RecordsElapsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(5 * time.Millisecond)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	res, err := newExec(srv.Client()).Do(context.Background(), "test", req)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Elapsed, 5*time.Millisecond)
}
