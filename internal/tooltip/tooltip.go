// Package tooltip — единственная на страницу всплывающая подсказка.
// Контроллер — единственный владелец таймеров скрытия: обработчики ссылок
// зовут только ShowAt/Hide/Flash и не трогают узел напрямую.
package tooltip

import (
	"strconv"
	"sync"
	"time"

	"github.com/xela07ax/crisisguard-client/internal/dom"
)

// NodeID — id узла подсказки в документе.
const NodeID = "crisisguard-tooltip"

const (
	DefaultFade = 200 * time.Millisecond

	// Смещение от указателя, чтобы подсказка не перекрывала курсор
	pointerOffset = 12
	// Зазор между нижним краем ссылки и подсказкой при Flash
	flashGap = 6
)

type Options struct {
	Fade  time.Duration
	Clock Clock
}

// Controller управляет одним узлом подсказки в одном документе.
type Controller struct {
	mu    sync.Mutex
	doc   *dom.Document
	clock Clock
	fade  time.Duration

	node    *dom.Element // создается лениво при первом показе
	visible bool
	x, y    float64
	text    string

	// Поколения таймеров: сработавший после Stop таймер не должен ничего менять
	fadeTimer  Timer
	fadeGen    uint64
	flashTimer Timer
	flashGen   uint64
}

func New(doc *dom.Document, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.Fade <= 0 {
		opts.Fade = DefaultFade
	}
	return &Controller{doc: doc, clock: opts.Clock, fade: opts.Fade}
}

type docKey struct{}

// For возвращает контроллер документа, создавая его при первом вызове.
// Повторные вызовы игнорируют opts.
func For(doc *dom.Document, opts Options) *Controller {
	return doc.LoadOrStore(docKey{}, func() any { return New(doc, opts) }).(*Controller)
}

// ShowAt показывает text рядом с точкой (x, y) окна. Отменяет начатое затухание.
func (c *Controller) ShowAt(x, y float64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showLocked(x+pointerOffset, y+pointerOffset, text)
}

// Hide начинает затухание; по окончании узел скрывается полностью.
func (c *Controller) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hideLocked()
}

// Flash показывает подсказку под прямоугольником ссылки и прячет ее через d,
// независимо от дальнейших движений указателя.
func (c *Controller) Flash(r dom.Rect, text string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.showLocked(r.X, r.Bottom()+flashGap, text)

	if c.flashTimer != nil {
		c.flashTimer.Stop()
	}
	c.flashGen++
	gen := c.flashGen
	c.flashTimer = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.flashGen {
			return
		}
		c.flashTimer = nil
		c.hideLocked()
	})
}

// Visible — видна ли подсказка сейчас (затухающая считается скрытой).
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Position — последняя точка привязки.
func (c *Controller) Position() (x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y
}

func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Created — создан ли узел в документе.
func (c *Controller) Created() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.node != nil
}

func (c *Controller) showLocked(x, y float64, text string) {
	c.cancelFadeLocked()

	if c.node == nil {
		c.node = c.doc.CreateElement("div", NodeID)
		c.node.SetAttr("role", "tooltip")
		c.node.SetStyle("position", "fixed")
		c.node.SetStyle("z-index", "2147483647")
		c.node.SetStyle("max-width", "320px")
		c.node.SetStyle("padding", "6px 10px")
		c.node.SetStyle("border-radius", "4px")
		c.node.SetStyle("background", "#b00020")
		c.node.SetStyle("color", "#fff")
		c.node.SetStyle("font", "12px/1.4 sans-serif")
		c.node.SetStyle("pointer-events", "none")
		c.node.SetStyle("transition", "opacity "+strconv.FormatInt(c.fade.Milliseconds(), 10)+"ms")
	}

	if text != c.text {
		c.node.SetText(text)
	}
	c.node.SetStyle("left", px(x))
	c.node.SetStyle("top", px(y))
	c.node.SetStyle("display", "block")
	c.node.SetStyle("opacity", "1")

	c.visible = true
	c.x, c.y, c.text = x, y, text
}

func (c *Controller) hideLocked() {
	if c.node == nil || !c.visible {
		return
	}
	c.visible = false
	c.node.SetStyle("opacity", "0")

	c.cancelFadeLocked()
	gen := c.fadeGen
	c.fadeTimer = c.clock.AfterFunc(c.fade, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.fadeGen || c.visible {
			return
		}
		c.fadeTimer = nil
		c.node.SetStyle("display", "none")
	})
}

func (c *Controller) cancelFadeLocked() {
	if c.fadeTimer != nil {
		c.fadeTimer.Stop()
		c.fadeTimer = nil
	}
	c.fadeGen++
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}
