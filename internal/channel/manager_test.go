package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/engine"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []string
}

func (s *recordingSink) Dispatch(p json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, string(p))
}

func (s *recordingSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.payloads...)
}

// fakeAgent — WebSocket-сервер агента: пишет полученные кадры и отдает
// заданные кадры после hello.
type fakeAgent struct {
	upgrader websocket.Upgrader
	send     []string
	dropOnce bool

	conns    atomic.Int32
	mu       sync.Mutex
	received []string
}

func (a *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := a.conns.Add(1)

	if a.dropOnce && n == 1 {
		return
	}
	for _, f := range a.send {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			return
		}
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		a.mu.Lock()
		a.received = append(a.received, string(data))
		a.mu.Unlock()
	}
}

func (a *fakeAgent) frames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.received...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startManager(t *testing.T, opts Options, sink Sink) *Manager {
	t.Helper()
	return startManagerWithMetrics(t, opts, sink, nil)
}

func startManagerWithMetrics(t *testing.T, opts Options, sink Sink, metrics *engine.Metrics) *Manager {
	t.Helper()
	mg := NewManager(opts, sink, metrics, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mg.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return mg
}

func TestManagerOpensSendsHelloAndDispatchesAlerts(t *testing.T) {
	agent := &fakeAgent{send: []string{
		`{"kind":"alert","payload":{"confidence":0.87,"message":"test"}}`,
		`{"kind":"pong"}`,
		`pong: Hello`,
	}}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	sink := &recordingSink{}
	mg := startManager(t, Options{
		URL:               wsURL(srv),
		Hello:             "hello",
		KeepaliveInterval: 20 * time.Millisecond,
		Policy:            Policy{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, Ceiling: 16},
	}, sink)

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"confidence":0.87,"message":"test"}`, sink.all()[0])
	assert.Equal(t, domain.ChannelOpen, mg.Snapshot().State)
	assert.Equal(t, 1, mg.Snapshot().Backoff)

	require.Eventually(t, func() bool { return len(agent.frames()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	frames := agent.frames()
	assert.Equal(t, "hello", frames[0])

	var ping struct {
		Kind      string `json:"kind"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal([]byte(frames[1]), &ping))
	assert.Equal(t, "ping", ping.Kind)
	assert.InDelta(t, time.Now().UnixMilli(), ping.Timestamp, 5000)
}

func TestManagerReconnectsAfterClose(t *testing.T) {
	agent := &fakeAgent{dropOnce: true}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	mg := startManager(t, Options{
		URL:    wsURL(srv),
		Hello:  "hello",
		Policy: Policy{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, Ceiling: 16},
	}, &recordingSink{})

	require.Eventually(t, func() bool {
		return agent.conns.Load() >= 2 && mg.Snapshot().State == domain.ChannelOpen
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, mg.Snapshot().Backoff)
	assert.False(t, mg.Snapshot().ReconnectPending)
}

func TestManagerBacksOffWhileAgentDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	mg := startManager(t, Options{
		URL:    url,
		Policy: Policy{Base: time.Millisecond, Max: 5 * time.Millisecond, Ceiling: 16},
	}, &recordingSink{})

	require.Eventually(t, func() bool { return mg.Snapshot().Backoff == 16 }, 2*time.Second, time.Millisecond)
	assert.NotEqual(t, domain.ChannelOpen, mg.Snapshot().State)
}

func TestRunTwiceFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	mg := startManager(t, Options{URL: wsURL(srv)}, &recordingSink{})
	require.Eventually(t, func() bool { return mg.running.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, mg.Run(context.Background()), errAlreadyRunning)
}

func TestHandleFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  []string
	}{
		{"alert", `{"kind":"alert","payload":{"confidence":0.5}}`, []string{`{"confidence":0.5}`}},
		{"legacy type key", `{"type":"alert","payload":{"message":"x"}}`, []string{`{"message":"x"}`}},
		{"alert without payload", `{"kind":"alert"}`, []string{`{}`}},
		{"pong", `{"kind":"pong"}`, nil},
		{"unknown kind", `{"kind":"status","payload":{}}`, nil},
		{"not json", `pong: Hello from client`, nil},
		{"json scalar", `42`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			mg := NewManager(Options{}, sink, nil, zap.NewNop())
			mg.HandleFrame([]byte(tt.frame))
			assert.Equal(t, tt.want, sink.all())
		})
	}
}

// halfBrokenConn отказывает в записи по флагу, чтение продолжает работать.
type halfBrokenConn struct {
	net.Conn
	failWrites *atomic.Bool
}

func (c *halfBrokenConn) Write(p []byte) (int, error) {
	if c.failWrites.Load() {
		return 0, errors.New("write side broken")
	}
	return c.Conn.Write(p)
}

func TestManagerPingFailureDoesNotReconnect(t *testing.T) {
	agent := &fakeAgent{}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	var failWrites atomic.Bool
	dialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := (&net.Dialer{}).DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &halfBrokenConn{Conn: c, failWrites: &failWrites}, nil
		},
	}

	metrics := engine.NewMetrics(prometheus.NewRegistry())
	mg := startManagerWithMetrics(t, Options{
		URL:               wsURL(srv),
		Hello:             "hello",
		KeepaliveInterval: 10 * time.Millisecond,
		Policy:            Policy{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond, Ceiling: 16},
		Dialer:            dialer,
	}, &recordingSink{}, metrics)

	require.Eventually(t, func() bool {
		f := agent.frames()
		return len(f) > 0 && f[0] == "hello"
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, domain.ChannelOpen, mg.Snapshot().State)

	failWrites.Store(true)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.PingFailuresTotal) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	snap := mg.Snapshot()
	assert.Equal(t, domain.ChannelOpen, snap.State)
	assert.Equal(t, 1, snap.Backoff)
	assert.False(t, snap.ReconnectPending)
	assert.Zero(t, testutil.ToFloat64(metrics.ReconnectsTotal))
	assert.Equal(t, int32(1), agent.conns.Load())
}
