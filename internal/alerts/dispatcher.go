// Package alerts превращает payload тревоги из канала в уведомление
// пользователю и запись в слот "последняя тревога".
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/audit"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/engine"
	"github.com/xela07ax/crisisguard-client/internal/notify"
)

// Title — фиксированный заголовок уведомления о тревоге.
const Title = "CrisisGuard Alert"

const (
	defaultQueueSize     = 64
	defaultStoreAttempts = 3
	handleTimeout        = 15 * time.Second
)

// FormatBody — текст уведомления: уверенность с двумя знаками или "unknown".
func FormatBody(a domain.Alert) string {
	confidence := "unknown"
	if a.Confidence != nil {
		confidence = fmt.Sprintf("%.2f", *a.Confidence)
	}
	body := fmt.Sprintf("Possible ransomware detected (confidence %s).", confidence)
	if a.Message != "" {
		body += " " + a.Message
	}
	return body
}

type Options struct {
	QueueSize     int
	StoreAttempts uint
}

// Dispatcher обрабатывает тревоги в своем воркере: канал только кладет
// payload в очередь и сразу возвращается к чтению.
type Dispatcher struct {
	notifier notify.Notifier
	store    domain.AlertStore
	journal  audit.Recorder
	metrics  *engine.Metrics
	logger   *zap.Logger
	attempts uint
	now      func() time.Time

	queue chan json.RawMessage
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(notifier notify.Notifier, store domain.AlertStore, journal audit.Recorder,
	metrics *engine.Metrics, logger *zap.Logger, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.StoreAttempts == 0 {
		opts.StoreAttempts = defaultStoreAttempts
	}
	if journal == nil {
		journal = audit.Discard{}
	}
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	return &Dispatcher{
		notifier: notifier,
		store:    store,
		journal:  journal,
		metrics:  metrics,
		logger:   logger.Named("alerts"),
		attempts: opts.StoreAttempts,
		now:      time.Now,
		queue:    make(chan json.RawMessage, opts.QueueSize),
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Stop закрывает очередь и дожидается обработки того, что уже принято.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

// Dispatch ставит payload в очередь и никогда не блокирует.
func (d *Dispatcher) Dispatch(payload json.RawMessage) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.AlertsDroppedTotal.Inc()
		d.logger.Warn("alert dropped: dispatcher stopped")
		return
	}
	select {
	case d.queue <- payload:
	default:
		d.metrics.AlertsDroppedTotal.Inc()
		d.logger.Error("alert_queue_overflow", zap.ByteString("payload", payload))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for payload := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		d.Handle(ctx, payload)
		cancel()
	}
}

// Handle — синхронная обработка одной тревоги. Ошибки уведомления и
// хранилища только логируются.
func (d *Dispatcher) Handle(ctx context.Context, payload json.RawMessage) {
	alert := domain.NewAlert(payload, d.now().UTC())
	d.metrics.AlertsTotal.Inc()

	body := FormatBody(alert)
	status := "DELIVERED"
	var errText string

	if id, err := d.notifier.Notify(ctx, Title, body); err != nil {
		status, errText = "FAILED", err.Error()
		d.metrics.NotificationsTotal.WithLabelValues("error").Inc()
		d.logger.Error("alert notification failed", zap.Error(err))
	} else {
		d.metrics.NotificationsTotal.WithLabelValues("ok").Inc()
		d.logger.Warn("alert delivered", zap.Uint64("notification_id", id), zap.String("body", body))
	}

	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(d.attempts),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
	).Do(func() error {
		return d.store.SaveLastAlert(ctx, alert)
	})
	if err != nil {
		d.metrics.StoreWritesTotal.WithLabelValues("error").Inc()
		d.logger.Error("persist last alert failed", zap.Error(err))
		if errText == "" {
			errText = err.Error()
		}
	} else {
		d.metrics.StoreWritesTotal.WithLabelValues("ok").Inc()
	}

	d.journal.Record(audit.Event{
		Kind:    audit.KindAlert,
		Subject: "agent",
		Status:  status,
		Payload: payload,
		Error:   errText,
	})
}
