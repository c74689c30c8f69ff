package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/engine"
	"github.com/xela07ax/crisisguard-client/internal/infra"
)

// Sink получает payload кадров типа "alert". Dispatch не должен блокировать.
type Sink interface {
	Dispatch(payload json.RawMessage)
}

type Options struct {
	URL               string
	Hello             string
	KeepaliveInterval time.Duration
	WriteTimeout      time.Duration
	Policy            Policy
	Dialer            *websocket.Dialer // nil — без таймаута на handshake
}

// OptionsFromConfig собирает Options из секции channel.
func OptionsFromConfig(cfg infra.ChannelConfig) Options {
	return Options{
		URL:               cfg.URL,
		Hello:             cfg.Hello,
		KeepaliveInterval: cfg.KeepaliveInterval,
		WriteTimeout:      cfg.WriteTimeout,
		Policy:            Policy{Base: cfg.BackoffBase, Max: cfg.BackoffMax, Ceiling: cfg.BackoffCeiling},
	}
}

var errAlreadyRunning = errors.New("channel: manager already running")

type event struct {
	kind EventKind
	gen  uint64
	conn *websocket.Conn
	err  error
}

// Manager — драйвер Machine. Единственная горутина Run владеет автоматом,
// таймерами и всеми записями в сокет; горутины dial и чтения только
// присылают события. Устаревшие события отсекаются по номеру попытки.
type Manager struct {
	opts    Options
	sink    Sink
	logger  *zap.Logger
	metrics *engine.Metrics

	events  chan event
	done    chan struct{}
	running atomic.Bool

	snapMu sync.RWMutex
	snap   domain.ChannelSnapshot

	// Поля ниже трогает только горутина Run
	m          Machine
	attempt    uint64
	conn       *websocket.Conn
	reconnect  *time.Timer
	reconnectC <-chan time.Time
	ticker     *time.Ticker
	tickC      <-chan time.Time
}

func NewManager(opts Options, sink Sink, metrics *engine.Metrics, logger *zap.Logger) *Manager {
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = 15 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	}
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}

	m := NewMachine(opts.Policy)
	return &Manager{
		opts:    opts,
		sink:    sink,
		logger:  logger.Named("channel"),
		metrics: metrics,
		events:  make(chan event, 16),
		done:    make(chan struct{}),
		snap:    m.Snapshot(),
		m:       m,
	}
}

// Snapshot — текущее состояние для API и метрик.
func (mg *Manager) Snapshot() domain.ChannelSnapshot {
	mg.snapMu.RLock()
	defer mg.snapMu.RUnlock()
	return mg.snap
}

// Open просит открыть канал; при OPEN или CONNECTING ничего не происходит.
func (mg *Manager) Open() {
	mg.post(event{kind: EvOpenRequested})
}

// Run стартует из CLOSED, сразу открывает канал и крутится до отмены ctx.
func (mg *Manager) Run(ctx context.Context) error {
	if !mg.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer close(mg.done)

	mg.logger.Info("channel manager started", zap.String("url", mg.opts.URL))
	mg.apply(ctx, event{kind: EvOpenRequested})

	for {
		select {
		case <-ctx.Done():
			mg.apply(ctx, event{kind: EvShutdown})
			mg.logger.Info("channel manager stopped")
			return nil
		case ev := <-mg.events:
			mg.apply(ctx, ev)
		case <-mg.reconnectC:
			mg.reconnectC = nil
			mg.apply(ctx, event{kind: EvTimerFired})
		case <-mg.tickC:
			mg.apply(ctx, event{kind: EvKeepaliveTick})
		}
	}
}

func (mg *Manager) post(ev event) bool {
	select {
	case mg.events <- ev:
		return true
	case <-mg.done:
		return false
	}
}

func (mg *Manager) apply(ctx context.Context, ev event) {
	switch ev.kind {
	case EvOpened:
		if ev.gen != mg.attempt {
			_ = ev.conn.Close()
			return
		}
		mg.conn = ev.conn
	case EvClosed:
		if ev.gen != mg.attempt {
			return
		}
		if ev.err != nil {
			mg.logger.Warn("channel closed", zap.Error(ev.err))
		}
		if mg.conn != nil {
			_ = mg.conn.Close()
			mg.conn = nil
		}
	}

	prev := mg.m.State
	next, effects := mg.m.Step(ev.kind)
	mg.m = next

	for _, fx := range effects {
		mg.perform(ctx, fx)
	}
	if ev.kind == EvOpened && mg.m.State == domain.ChannelOpen {
		go mg.readLoop(ev.conn, ev.gen)
	}

	if prev != mg.m.State {
		mg.logger.Debug("channel state changed",
			zap.Stringer("event", ev.kind),
			zap.Stringer("from", prev),
			zap.Stringer("to", mg.m.State),
			zap.Int("backoff", mg.m.Backoff))
	}
	mg.publish()
}

func (mg *Manager) perform(ctx context.Context, fx Effect) {
	switch fx.Kind {
	case FxDial:
		mg.attempt++
		go mg.dial(ctx, mg.attempt)

	case FxSendHello:
		if err := mg.write(websocket.TextMessage, []byte(mg.opts.Hello)); err != nil {
			mg.logger.Warn("hello send failed", zap.Error(err))
		}
		mg.logger.Info("channel open")

	case FxStartKeepalive:
		mg.ticker = time.NewTicker(mg.opts.KeepaliveInterval)
		mg.tickC = mg.ticker.C

	case FxStopKeepalive:
		if mg.ticker != nil {
			mg.ticker.Stop()
			mg.ticker, mg.tickC = nil, nil
		}

	case FxScheduleReconnect:
		mg.logger.Info("reconnect scheduled", zap.Duration("delay", fx.Delay), zap.Int("backoff", mg.m.Backoff))
		mg.metrics.ReconnectsTotal.Inc()
		mg.reconnect = time.NewTimer(fx.Delay)
		mg.reconnectC = mg.reconnect.C

	case FxCancelReconnect:
		if mg.reconnect != nil {
			mg.reconnect.Stop()
			mg.reconnect, mg.reconnectC = nil, nil
		}

	case FxSendPing:
		// Best-effort: сбой ping не переподключает, это делает только close/error
		if err := mg.sendPing(); err != nil {
			mg.metrics.PingFailuresTotal.Inc()
			mg.logger.Warn("keepalive ping failed", zap.Error(err))
		}

	case FxCloseConn:
		if mg.conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = mg.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = mg.conn.Close()
			mg.conn = nil
		}
	}
}

// dial без собственного таймаута: неудача приходит только как Closed.
func (mg *Manager) dial(ctx context.Context, gen uint64) {
	conn, _, err := mg.opts.Dialer.DialContext(ctx, mg.opts.URL, nil)
	if err != nil {
		mg.post(event{kind: EvClosed, gen: gen, err: err})
		return
	}
	if !mg.post(event{kind: EvOpened, gen: gen, conn: conn}) {
		_ = conn.Close()
	}
}

func (mg *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			mg.post(event{kind: EvClosed, gen: gen, err: err})
			return
		}
		mg.HandleFrame(data)
	}
}

type pingFrame struct {
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
}

func (mg *Manager) sendPing() error {
	data, err := json.Marshal(pingFrame{Kind: "ping", Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return mg.write(websocket.TextMessage, data)
}

func (mg *Manager) write(messageType int, data []byte) error {
	if mg.conn == nil {
		return errors.New("channel: no connection")
	}
	if mg.opts.WriteTimeout > 0 {
		_ = mg.conn.SetWriteDeadline(time.Now().Add(mg.opts.WriteTimeout))
	}
	return mg.conn.WriteMessage(messageType, data)
}

func (mg *Manager) publish() {
	snap := mg.m.Snapshot()

	mg.snapMu.Lock()
	mg.snap = snap
	mg.snapMu.Unlock()

	mg.metrics.ChannelState.Set(float64(snap.State))
	mg.metrics.ChannelBackoff.Set(float64(snap.Backoff))
}

type inboundFrame struct {
	Kind    string          `json:"kind"`
	Type    string          `json:"type"` // агент пока шлет "type" вместо "kind"
	Payload json.RawMessage `json:"payload"`
}

// HandleFrame разбирает входящий кадр. Не-JSON логируется и отбрасывается,
// все кроме "alert" только логируется.
func (mg *Manager) HandleFrame(data []byte) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		mg.metrics.FramesTotal.WithLabelValues("opaque").Inc()
		mg.logger.Debug("opaque frame dropped", zap.ByteString("frame", truncate(data, 256)))
		return
	}

	kind := f.Kind
	if kind == "" {
		kind = f.Type
	}

	switch kind {
	case "alert":
		mg.metrics.FramesTotal.WithLabelValues("alert").Inc()
		payload := f.Payload
		if len(payload) == 0 || string(payload) == "null" {
			payload = json.RawMessage("{}")
		}
		mg.sink.Dispatch(payload)
	case "pong", "ack":
		mg.metrics.FramesTotal.WithLabelValues(kind).Inc()
		mg.logger.Debug("protocol frame", zap.String("kind", kind))
	default:
		mg.metrics.FramesTotal.WithLabelValues("other").Inc()
		mg.logger.Info("unhandled frame ignored", zap.String("kind", kind))
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
