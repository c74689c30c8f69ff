package connectors

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAgentUnreachable — агент не ответил вовсе (не запущен, порт закрыт, таймаут).
	ErrAgentUnreachable = errors.New("detection agent unreachable")
	// ErrScanUnavailable — сервис классификации ссылок не ответил.
	ErrScanUnavailable = errors.New("link scan service unavailable")
	// ErrBreakerOpen — предохранитель открыт, запрос даже не отправлялся.
	ErrBreakerOpen = errors.New("circuit breaker open")
)

// StatusError — сервис ответил, но не 2xx. Тело сохраняем для уведомления.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, e.Body)
}

type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
