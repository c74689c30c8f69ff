package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/connectors"
	"github.com/xela07ax/crisisguard-client/internal/infra"
)

type classifierFunc func(ctx context.Context, link string) (string, error)

func (f classifierFunc) Classify(ctx context.Context, link string) (string, error) {
	return f(ctx, link)
}

func testScannerConfig() infra.ScannerConfig {
	return infra.ScannerConfig{
		RequestTimeout: time.Second,
		RetryAttempts:  3,
		CBMaxRequests:  1,
		CBInterval:     time.Minute,
		CBTimeout:      time.Minute,
		CBMaxFailures:  2,
	}
}

func TestReliabilityPassesVerdictThrough(t *testing.T) {
	m := NewMetrics(nil)
	w := NewReliabilityWrapper(classifierFunc(func(context.Context, string) (string, error) {
		return "MALICIOUS", nil
	}), testScannerConfig(), m, zap.NewNop())

	v, err := w.Classify(context.Background(), "https://x.example")
	require.NoError(t, err)
	assert.Equal(t, "MALICIOUS", v)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanRequestsTotal.WithLabelValues("ok")))
}

func TestReliabilityRetriesOnlyThrottling(t *testing.T) {
	var calls atomic.Int32
	w := NewReliabilityWrapper(classifierFunc(func(context.Context, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", &connectors.ThrottleError{RetryAfter: time.Millisecond}
		}
		return "benign", nil
	}), testScannerConfig(), nil, zap.NewNop())

	v, err := w.Classify(context.Background(), "https://x.example")
	require.NoError(t, err)
	assert.Equal(t, "benign", v)
	assert.EqualValues(t, 2, calls.Load())

	calls.Store(0)
	w = NewReliabilityWrapper(classifierFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", connectors.ErrScanUnavailable
	}), testScannerConfig(), nil, zap.NewNop())

	_, err = w.Classify(context.Background(), "https://x.example")
	assert.ErrorIs(t, err, connectors.ErrScanUnavailable)
	assert.EqualValues(t, 1, calls.Load())
}

func TestReliabilityBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	w := NewReliabilityWrapper(classifierFunc(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", errors.New("connection refused")
	}), testScannerConfig(), nil, zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := w.Classify(context.Background(), "https://x.example")
		require.Error(t, err)
	}
	_, err := w.Classify(context.Background(), "https://x.example")
	assert.ErrorIs(t, err, connectors.ErrBreakerOpen)
	assert.EqualValues(t, 2, calls.Load())
}

func TestReliabilityClientErrorsDoNotTripBreaker(t *testing.T) {
	w := NewReliabilityWrapper(classifierFunc(func(context.Context, string) (string, error) {
		return "", &connectors.StatusError{Op: "classify", Code: 422}
	}), testScannerConfig(), nil, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := w.Classify(context.Background(), "https://x.example")
		var se *connectors.StatusError
		require.ErrorAs(t, err, &se)
	}
}

func TestTracingMiddleware(t *testing.T) {
	var seen string
	h := TracingMiddleware(AccessLog(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
	})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Trace-ID", "abc")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Trace-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get("X-Trace-ID"), 36)
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", TraceID(context.Background()))
}
