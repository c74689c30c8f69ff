package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

func TestSetRatesSendsUppercaseKeys(t *testing.T) {
	var got map[string]float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/set_rates", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","updated":{"RENAMES_THRESHOLD":3}}`))
	}))
	defer srv.Close()

	c := NewAgentClient(srv.URL, time.Second, zap.NewNop())
	ack, err := c.SetRates(context.Background(), domain.RateConfig{
		FilesModifiedThreshold: 5,
		TimeWindowSeconds:      15,
		BytesWrittenThreshold:  10240,
		RenamesThreshold:       3,
		EntropyThreshold:       2,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", ack.Status)
	assert.Equal(t, 3.0, got["RENAMES_THRESHOLD"])
	assert.Equal(t, 15.0, got["TIME_WINDOW_SECONDS"])
	assert.Len(t, got, 5)
}

func TestSetRatesNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewAgentClient(srv.URL, time.Second, zap.NewNop())
	_, err := c.SetRates(context.Background(), domain.RateConfig{TimeWindowSeconds: 1})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
	assert.Equal(t, "boom", se.Body)
}

func TestAgentUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewAgentClient(addr, time.Second, zap.NewNop())
	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, ErrAgentUnreachable)
}

func TestStatusDecodesAgentShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cpu_usage":12.5,"disk_io_mb":3.1,"confidence":0.42,
			"alert":{"active":true,"message":"high entropy writes"},
			"detectors":{"entropy":0.9},"runtime_config":{"RENAMES_THRESHOLD":2}}`))
	}))
	defer srv.Close()

	c := NewAgentClient(srv.URL, time.Second, zap.NewNop())
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.42, st.Confidence)
	assert.True(t, st.Alert.Active)
	assert.Equal(t, 0.9, st.Detectors["entropy"])
	assert.EqualValues(t, 2, st.RuntimeConfig["RENAMES_THRESHOLD"])
}

func TestClassify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		verdict := "benign"
		if req.URL == "https://bad.example" {
			verdict = "MALICIOUS"
		}
		_ = json.NewEncoder(w).Encode(scanResponse{URL: req.URL, Verdict: verdict})
	}))
	defer srv.Close()

	c := NewScanClient(srv.URL, time.Second)
	v, err := c.Classify(context.Background(), "https://bad.example")
	require.NoError(t, err)
	assert.Equal(t, "MALICIOUS", v)

	v, err = c.Classify(context.Background(), "https://good.example")
	require.NoError(t, err)
	assert.Equal(t, "benign", v)
}

func TestClassifyThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewScanClient(srv.URL, time.Second).Classify(context.Background(), "https://x.example")
	var te *ThrottleError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 2*time.Second, te.RetryAfter)

	var se *StatusError
	assert.ErrorAs(t, err, &se)
}
