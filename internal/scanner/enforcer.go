package scanner

import (
	"sync"
	"time"

	"github.com/xela07ax/crisisguard-client/internal/dom"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/tooltip"
)

const (
	WarningMalicious = "CrisisGuard blocked this link: it was reported as malicious."
	WarningInsecure  = "CrisisGuard blocked this link: it uses an unencrypted (http) connection."

	// DisabledAttr ставится на выключенную ссылку, значение равно вердикту.
	DisabledAttr = "data-crisisguard-disabled"
)

// Первичные действия пользователя, которые гасятся в фазе capture.
var blockedEvents = []dom.EventType{
	dom.EventClick,
	dom.EventAuxClick,
	dom.EventMouseDown,
	dom.EventMouseUp,
	dom.EventContextMenu,
}

// Warning — текст подсказки для вердикта.
func Warning(v domain.Verdict) string {
	if v == domain.VerdictInsecure {
		return WarningInsecure
	}
	return WarningMalicious
}

// Enforcer выключает ссылки одной страницы.
type Enforcer struct {
	tip   *tooltip.Controller
	flash time.Duration
}

func NewEnforcer(tip *tooltip.Controller, flash time.Duration) *Enforcer {
	return &Enforcer{tip: tip, flash: flash}
}

// Disable выключает ссылку. Повторный вызов ничего не меняет и возвращает false.
func (e *Enforcer) Disable(el *dom.Element, verdict domain.Verdict) bool {
	if el.HasAttr(DisabledAttr) {
		return false
	}
	el.SetAttr(DisabledAttr, string(verdict))
	el.SetAttr("aria-disabled", "true")

	el.SetStyle("text-decoration", "line-through")
	el.SetStyle("filter", "grayscale(100%)")
	el.SetStyle("opacity", "0.6")
	el.SetStyle("cursor", "not-allowed")

	installGuard(el.Document())

	text := Warning(verdict)
	show := func(ev *dom.Event) { e.tip.ShowAt(ev.ClientX, ev.ClientY, text) }
	el.AddEventListener(dom.EventMouseEnter, show, false)
	el.AddEventListener(dom.EventMouseMove, show, false)
	el.AddEventListener(dom.EventMouseLeave, func(*dom.Event) { e.tip.Hide() }, false)
	return true
}

type guardKey struct{}

// installGuard один раз на документ вешает на корень capture-обработчики,
// которые гасят первичные действия над выключенными ссылками. Корень
// получает событие первым, поэтому обработчики страницы на предках
// не могут остановить распространение раньше.
func installGuard(doc *dom.Document) {
	once := doc.LoadOrStore(guardKey{}, func() any { return new(sync.Once) }).(*sync.Once)
	once.Do(func() {
		cancel := func(ev *dom.Event) {
			if ev.Target == nil || ev.Target.ClosestWithAttr(DisabledAttr) == nil {
				return
			}
			ev.PreventDefault()
			ev.StopImmediatePropagation()
		}
		for _, typ := range blockedEvents {
			doc.PrependEventListener(typ, cancel, true)
		}
	})
}

// FlashInsecure — разовый показ под ссылкой, скрывается сам через flash.
func (e *Enforcer) FlashInsecure(el *dom.Element) {
	e.tip.Flash(el.Rect(), WarningInsecure, e.flash)
}
