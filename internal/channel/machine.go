// Package channel держит управляющий WebSocket-канал к локальному агенту:
// чистый автомат состояний (Machine) и драйвер поверх gorilla/websocket (Manager).
package channel

import (
	"fmt"
	"time"

	"github.com/xela07ax/crisisguard-client/internal/domain"
)

// Policy — параметры переподключения.
type Policy struct {
	Base    time.Duration // задержка при counter = 1
	Max     time.Duration // потолок задержки
	Ceiling int           // потолок counter
}

// DefaultPolicy: 2s, 4s, 8s, 16s, далее 30s.
var DefaultPolicy = Policy{Base: 2 * time.Second, Max: 30 * time.Second, Ceiling: 16}

// Delay = min(Max, Base * counter).
func (p Policy) Delay(counter int) time.Duration {
	d := p.Base * time.Duration(counter)
	if d > p.Max {
		return p.Max
	}
	return d
}

// Next удваивает counter, не выше Ceiling.
func (p Policy) Next(counter int) int {
	n := counter * 2
	if n > p.Ceiling {
		return p.Ceiling
	}
	return n
}

type EventKind int

const (
	EvOpenRequested EventKind = iota
	EvOpened
	EvClosed // штатное закрытие и ошибка транспорта неразличимы
	EvTimerFired
	EvKeepaliveTick
	EvShutdown
)

func (k EventKind) String() string {
	switch k {
	case EvOpenRequested:
		return "open_requested"
	case EvOpened:
		return "opened"
	case EvClosed:
		return "closed"
	case EvTimerFired:
		return "timer_fired"
	case EvKeepaliveTick:
		return "keepalive_tick"
	case EvShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

type EffectKind int

const (
	FxDial EffectKind = iota
	FxSendHello
	FxStartKeepalive
	FxStopKeepalive
	FxScheduleReconnect
	FxCancelReconnect
	FxSendPing
	FxCloseConn
)

// Effect — что драйвер должен сделать после перехода.
type Effect struct {
	Kind  EffectKind
	Delay time.Duration // только для FxScheduleReconnect
}

// Machine — состояние канала. Значение, а не указатель: Step возвращает
// новое состояние и ничего не делает сам.
type Machine struct {
	State        domain.ChannelState
	Backoff      int
	TimerPending bool
	policy       Policy
}

func NewMachine(p Policy) Machine {
	if p.Base <= 0 || p.Max <= 0 || p.Ceiling < 1 {
		p = DefaultPolicy
	}
	return Machine{State: domain.ChannelClosed, Backoff: 1, policy: p}
}

func (m Machine) Policy() Policy { return m.policy }

func (m Machine) Snapshot() domain.ChannelSnapshot {
	return domain.ChannelSnapshot{State: m.State, Backoff: m.Backoff, ReconnectPending: m.TimerPending}
}

// Step — функция переходов.
func (m Machine) Step(ev EventKind) (Machine, []Effect) {
	switch ev {
	case EvOpenRequested:
		return m.open()

	case EvOpened:
		if m.State != domain.ChannelConnecting {
			// Соединение, которого мы уже не ждем (Shutdown во время dial)
			return m, []Effect{{Kind: FxCloseConn}}
		}
		var fx []Effect
		if m.TimerPending {
			m.TimerPending = false
			fx = append(fx, Effect{Kind: FxCancelReconnect})
		}
		m.Backoff = 1
		m.State = domain.ChannelOpen
		return m, append(fx, Effect{Kind: FxSendHello}, Effect{Kind: FxStartKeepalive})

	case EvClosed:
		if m.State == domain.ChannelClosed {
			return m, nil
		}
		var fx []Effect
		if m.State == domain.ChannelOpen {
			fx = append(fx, Effect{Kind: FxStopKeepalive})
		}
		m.State = domain.ChannelReconnectPending
		if !m.TimerPending {
			m.TimerPending = true
			fx = append(fx, Effect{Kind: FxScheduleReconnect, Delay: m.policy.Delay(m.Backoff)})
		}
		return m, fx

	case EvTimerFired:
		if !m.TimerPending {
			return m, nil
		}
		m.TimerPending = false
		m.Backoff = m.policy.Next(m.Backoff)
		return m.open()

	case EvKeepaliveTick:
		if m.State != domain.ChannelOpen {
			return m, nil
		}
		return m, []Effect{{Kind: FxSendPing}}

	case EvShutdown:
		var fx []Effect
		if m.TimerPending {
			m.TimerPending = false
			fx = append(fx, Effect{Kind: FxCancelReconnect})
		}
		if m.State == domain.ChannelOpen {
			fx = append(fx, Effect{Kind: FxStopKeepalive})
		}
		if m.State != domain.ChannelClosed {
			fx = append(fx, Effect{Kind: FxCloseConn})
		}
		m.State = domain.ChannelClosed
		return m, fx
	}
	return m, nil
}

// open — попытка подключения; повторный запрос при OPEN/CONNECTING ничего не делает.
func (m Machine) open() (Machine, []Effect) {
	if m.State == domain.ChannelOpen || m.State == domain.ChannelConnecting {
		return m, nil
	}
	m.State = domain.ChannelConnecting
	return m, []Effect{{Kind: FxDial}}
}
