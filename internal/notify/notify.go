// Package notify доставляет пользователю уведомления (заголовок + текст).
package notify

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/infra"
)

// Notifier — платформенная доставка уведомления. Возвращает локальный
// монотонный id уведомления.
type Notifier interface {
	Notify(ctx context.Context, title, body string) (uint64, error)
}

// sequence — единственное внутреннее состояние нотификаторов.
type sequence struct {
	last atomic.Uint64
}

func (s *sequence) next() uint64 {
	return s.last.Add(1)
}

// LogNotifier — локальный фолбэк: уведомление уходит в лог.
type LogNotifier struct {
	seq    sequence
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, title, body string) (uint64, error) {
	id := n.seq.next()
	n.logger.Info("[NOTIFY] "+title, zap.Uint64("id", id), zap.String("body", body))
	return id, nil
}

// Fallback пробует primary, а при ошибке доставляет через secondary.
type Fallback struct {
	primary   Notifier
	secondary Notifier
	logger    *zap.Logger
}

func NewFallback(primary, secondary Notifier, logger *zap.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger.Named("notify")}
}

func (f *Fallback) Notify(ctx context.Context, title, body string) (uint64, error) {
	id, err := f.primary.Notify(ctx, title, body)
	if err == nil {
		return id, nil
	}
	f.logger.Warn("primary notifier failed, using fallback", zap.Error(err))
	return f.secondary.Notify(ctx, title, body)
}

// New выбирает бэкенд по конфигу. Если D-Bus недоступен (нет сессии,
// headless), честно откатываемся на лог.
func New(cfg infra.NotifyConfig, logger *zap.Logger) (Notifier, error) {
	logNotifier := NewLogNotifier(logger)

	switch cfg.Backend {
	case "", "log":
		return logNotifier, nil
	case "dbus":
		dn, err := NewDBusNotifier(cfg.AppName, cfg.Timeout, logger)
		if err != nil {
			logger.Warn("dbus notifications unavailable, falling back to log", zap.Error(err))
			return logNotifier, nil
		}
		return NewFallback(dn, logNotifier, logger), nil
	default:
		return nil, fmt.Errorf("notify: unknown backend %q", cfg.Backend)
	}
}
