package dom

// EventType — имя DOM-события.
type EventType string

const (
	EventClick       EventType = "click"
	EventAuxClick    EventType = "auxclick"
	EventMouseDown   EventType = "mousedown"
	EventMouseUp     EventType = "mouseup"
	EventContextMenu EventType = "contextmenu"
	EventMouseEnter  EventType = "mouseenter"
	EventMouseMove   EventType = "mousemove"
	EventMouseLeave  EventType = "mouseleave"
)

// Bubbles — mouseenter/mouseleave в DOM не всплывают.
func (t EventType) Bubbles() bool {
	return t != EventMouseEnter && t != EventMouseLeave
}

// Event — одно событие указателя.
type Event struct {
	Type    EventType
	ClientX float64
	ClientY float64
	Target  *Element

	defaultPrevented bool
	stopped          bool
	immediateStopped bool
}

type Listener func(*Event)

func (e *Event) PreventDefault() { e.defaultPrevented = true }

func (e *Event) StopPropagation() { e.stopped = true }

func (e *Event) StopImmediatePropagation() {
	e.stopped = true
	e.immediateStopped = true
}

func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// Rect — прямоугольник элемента в координатах окна.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) Bottom() float64 { return r.Y + r.Height }
