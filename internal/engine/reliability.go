package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/crisisguard-client/internal/connectors"
	"github.com/xela07ax/crisisguard-client/internal/infra"
)

// Classifier — удаленная классификация одной ссылки.
type Classifier interface {
	Classify(ctx context.Context, link string) (string, error)
}

// ReliabilityWrapper — лимитер, предохранитель и повтор при 429 вокруг
// сервиса классификации. Любая ошибка наружу означает fail-open у сканера.
type ReliabilityWrapper struct {
	next     Classifier
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
	metrics  *Metrics
	logger   *zap.Logger
}

func NewReliabilityWrapper(next Classifier, cfg infra.ScannerConfig, metrics *Metrics, logger *zap.Logger) *ReliabilityWrapper {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	logger = logger.Named("scan_reliability")

	maxFailures := cfg.CBMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "link-scan",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// 4xx кроме 429 — ответ сервиса про конкретную ссылку, а не его поломка
			var se *connectors.StatusError
			if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
				var te *connectors.ThrottleError
				return !errors.As(err, &te)
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	// rate_limit == 0 — без лимита
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(limit, burst),
		attempts: attempts,
		timeout:  cfg.RequestTimeout,
		metrics:  metrics,
		logger:   logger,
	}
}

func (w *ReliabilityWrapper) Classify(ctx context.Context, link string) (verdict string, err error) {
	start := time.Now()
	defer func() {
		w.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			w.metrics.ScanRequestsTotal.WithLabelValues("ok").Inc()
		case errors.Is(err, connectors.ErrBreakerOpen):
			w.metrics.ScanRequestsTotal.WithLabelValues("breaker_open").Inc()
		default:
			w.metrics.ScanRequestsTotal.WithLabelValues("error").Inc()
		}
	}()

	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	res, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.LastErrorOnly(true),
			// Повторяем только троттлинг: прочие ошибки означают fail-open сразу
			retry.RetryIf(func(err error) bool {
				var tErr *connectors.ThrottleError
				return errors.As(err, &tErr)
			}),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		var out string
		retryErr := r.Do(func() error {
			tCtx, cancel := w.callContext(ctx)
			defer cancel()

			var callErr error
			out, callErr = w.next.Classify(tCtx, link)
			return callErr
		})
		return out, retryErr
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("classify %s: %w", link, connectors.ErrBreakerOpen)
		}
		return "", err
	}
	return res.(string), nil
}

func (w *ReliabilityWrapper) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.timeout)
}
