package tooltip

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/crisisguard-client/internal/dom"
)

// manualClock срабатывает только по Advance.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func newTestController(t *testing.T) (*Controller, *dom.Document, *manualClock) {
	t.Helper()
	doc, err := dom.ParseString(`<html><body><a href="https://x.example">x</a></body></html>`, "")
	require.NoError(t, err)
	clock := &manualClock{}
	return New(doc, Options{Fade: 100 * time.Millisecond, Clock: clock}), doc, clock
}

func TestNodeIsCreatedLazilyAndOnlyOnce(t *testing.T) {
	c, doc, _ := newTestController(t)
	assert.False(t, c.Created())
	assert.Nil(t, doc.ElementByID(NodeID))

	c.ShowAt(10, 20, "first")
	first := doc.ElementByID(NodeID)
	require.NotNil(t, first)

	c.Hide()
	c.ShowAt(30, 40, "second")

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Equal(t, 1, countOccurrences(out, `id="`+NodeID+`"`))
	assert.True(t, first.Same(doc.ElementByID(NodeID)))
	assert.Equal(t, "second", first.Text())
}

func TestShowAtPositionsNearPointer(t *testing.T) {
	c, doc, _ := newTestController(t)

	c.ShowAt(100, 50, "warning")
	node := doc.ElementByID(NodeID)

	assert.True(t, c.Visible())
	assert.Equal(t, "112px", node.Style("left"))
	assert.Equal(t, "62px", node.Style("top"))
	assert.Equal(t, "1", node.Style("opacity"))
	assert.Equal(t, "block", node.Style("display"))
}

func TestHideFadesThenHides(t *testing.T) {
	c, doc, clock := newTestController(t)

	c.ShowAt(0, 0, "warning")
	c.Hide()
	node := doc.ElementByID(NodeID)

	assert.False(t, c.Visible())
	assert.Equal(t, "0", node.Style("opacity"))
	assert.Equal(t, "block", node.Style("display"), "still fading")

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, "none", node.Style("display"))
}

func TestShowDuringFadeCancelsHide(t *testing.T) {
	c, doc, clock := newTestController(t)

	c.ShowAt(0, 0, "warning")
	c.Hide()
	clock.Advance(50 * time.Millisecond)
	c.ShowAt(5, 5, "warning")
	clock.Advance(time.Second)

	node := doc.ElementByID(NodeID)
	assert.True(t, c.Visible())
	assert.Equal(t, "block", node.Style("display"))
	assert.Equal(t, "1", node.Style("opacity"))
}

func TestFlashAutoHidesAfterDuration(t *testing.T) {
	c, doc, clock := newTestController(t)

	c.Flash(dom.Rect{X: 10, Y: 20, Width: 50, Height: 14}, "insecure", 3*time.Second)
	node := doc.ElementByID(NodeID)
	assert.True(t, c.Visible())
	assert.Equal(t, "10px", node.Style("left"))
	assert.Equal(t, "40px", node.Style("top"))

	clock.Advance(2 * time.Second)
	assert.True(t, c.Visible())

	clock.Advance(time.Second)
	assert.False(t, c.Visible())
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, "none", node.Style("display"))
}

func TestHideWithoutShowIsNoop(t *testing.T) {
	c, doc, _ := newTestController(t)
	c.Hide()
	assert.False(t, c.Created())
	assert.Nil(t, doc.ElementByID(NodeID))
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestForReturnsOneControllerPerDocument(t *testing.T) {
	doc, err := dom.ParseString(`<a href="https://x.example">x</a>`, "")
	require.NoError(t, err)

	a := For(doc, Options{Clock: &manualClock{}})
	b := For(doc, Options{})
	assert.Same(t, a, b)

	other, err := dom.ParseString(`<a href="https://y.example">y</a>`, "")
	require.NoError(t, err)
	assert.NotSame(t, a, For(other, Options{}))
}
