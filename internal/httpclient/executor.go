package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/authr-client/internal/metrics"
)

// RequestIDHeader carries a per-request correlation id on every outbound call.
const RequestIDHeader = "X-Request-ID"

// Result is the captured outcome of one HTTP exchange. Body is fully read.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
	Elapsed    time.Duration
}

// Executor sends a request exactly once and captures the response.
// It never retries; retry policy belongs to the caller.
type Executor struct {
	logger  *zap.Logger
	http    *http.Client
	tag     string
	timeout time.Duration
}

// New creates an Executor. A nil httpClient uses a zero-value http.Client.
// timeout bounds each request when positive; zero leaves it to the transport.
func New(logger *zap.Logger, httpClient *http.Client, tag string, timeout time.Duration) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Executor{
		logger:  logger,
		http:    httpClient,
		tag:     tag,
		timeout: timeout,
	}
}

// Do executes req and reads the whole response body.
// route names the call (e.g. "login") and labels its metrics.
// Any HTTP status is a successful exchange; a non-nil error means no usable response arrived.
func (e *Executor) Do(ctx context.Context, route string, req *http.Request) (*Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	req = req.WithContext(ctx)

	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set(RequestIDHeader, requestID)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	defer metrics.ObserveDuration(metrics.RequestDuration, start, route, req.Method)

	resp, err := e.http.Do(req)
	if err != nil {
		metrics.IncTransportError(route, req.Method)
		e.logger.Warn(e.tag+".http_failed",
			zap.String("route", route),
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncTransportError(route, req.Method)
		e.logger.Warn(e.tag+".read_failed",
			zap.String("url", req.URL.String()),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
			zap.Error(err))
		return nil, fmt.Errorf("read response body: %w", err)
	}
	elapsed := time.Since(start)

	metrics.IncRequest(route, req.Method, resp.StatusCode)
	e.logger.Debug(e.tag+".http_done",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		RequestID:  requestID,
		Elapsed:    elapsed,
	}, nil
}
