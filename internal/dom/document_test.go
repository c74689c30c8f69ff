package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<div id="wrap">
  <a id="a1" href="http://a.example/x">A</a>
  <a id="a2" href="/relative?q=1">B</a>
  <a name="no-href">C</a>
  <a id="a3" href="https://c.example">D</a>
</div>
</body></html>`

func TestAnchorsInDocumentOrder(t *testing.T) {
	doc, err := ParseString(page, "https://host.example/dir/page.html")
	require.NoError(t, err)

	anchors := doc.Anchors()
	require.Len(t, anchors, 3)

	var hrefs []string
	for _, a := range anchors {
		hrefs = append(hrefs, a.Href())
	}
	assert.Equal(t, []string{
		"http://a.example/x",
		"https://host.example/relative?q=1",
		"https://c.example",
	}, hrefs)
}

func TestBaseElementOverridesPageURL(t *testing.T) {
	doc, err := ParseString(`<html><head><base href="https://cdn.example/"></head><body><a href="f">x</a></body></html>`, "https://host.example/")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/f", doc.Anchors()[0].Href())
}

func TestSetStyleKeepsOtherDeclarations(t *testing.T) {
	doc, err := ParseString(`<a id="x" href="#" style="color: red; margin:0">x</a>`, "")
	require.NoError(t, err)

	el := doc.ElementByID("x")
	require.NotNil(t, el)
	el.SetStyle("color", "blue")
	el.SetStyle("opacity", "0.5")

	raw, _ := el.Attr("style")
	assert.Equal(t, "color: blue; margin: 0; opacity: 0.5", raw)
	assert.Equal(t, "0.5", el.Style("opacity"))
	assert.Equal(t, "", el.Style("display"))
}

func TestDispatchCaptureTargetBubbleOrder(t *testing.T) {
	doc, err := ParseString(page, "")
	require.NoError(t, err)

	wrap := doc.ElementByID("wrap")
	link := doc.ElementByID("a1")

	var order []string
	wrap.AddEventListener(EventClick, func(*Event) { order = append(order, "wrap-bubble") }, false)
	wrap.AddEventListener(EventClick, func(*Event) { order = append(order, "wrap-capture") }, true)
	link.AddEventListener(EventClick, func(*Event) { order = append(order, "target") }, false)

	ok := doc.Dispatch(link, &Event{Type: EventClick})
	assert.True(t, ok)
	assert.Equal(t, []string{"wrap-capture", "target", "wrap-bubble"}, order)
}

func TestCaptureListenerCanCancelEverything(t *testing.T) {
	doc, err := ParseString(page, "")
	require.NoError(t, err)

	link := doc.ElementByID("a1")
	wrap := doc.ElementByID("wrap")

	pageHandlerCalled := false
	link.AddEventListener(EventClick, func(e *Event) {
		e.PreventDefault()
		e.StopImmediatePropagation()
	}, true)
	link.AddEventListener(EventClick, func(*Event) { pageHandlerCalled = true }, false)
	wrap.AddEventListener(EventClick, func(*Event) { pageHandlerCalled = true }, false)

	ev := &Event{Type: EventClick}
	assert.False(t, doc.Dispatch(link, ev))
	assert.True(t, ev.DefaultPrevented())
	assert.False(t, pageHandlerCalled)
}

func TestMouseEnterDoesNotBubble(t *testing.T) {
	doc, err := ParseString(page, "")
	require.NoError(t, err)

	called := false
	doc.ElementByID("wrap").AddEventListener(EventMouseEnter, func(*Event) { called = true }, false)
	doc.Dispatch(doc.ElementByID("a1"), &Event{Type: EventMouseEnter})
	assert.False(t, called)
}

func TestCreateElementAppendsToBody(t *testing.T) {
	doc, err := ParseString(page, "")
	require.NoError(t, err)

	el := doc.CreateElement("div", "tip")
	el.SetText("hello")
	assert.True(t, el.Same(doc.ElementByID("tip")))

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, `<div id="tip">hello</div></body>`)
}

func TestDocumentListenerRunsBeforeElementCapture(t *testing.T) {
	doc, err := ParseString(page, "")
	require.NoError(t, err)

	var order []string
	doc.ElementByID("wrap").AddEventListener(EventClick, func(*Event) { order = append(order, "wrap-capture") }, true)
	doc.AddEventListener(EventClick, func(*Event) { order = append(order, "doc-capture") }, true)
	doc.PrependEventListener(EventClick, func(*Event) { order = append(order, "doc-first") }, true)

	doc.Dispatch(doc.ElementByID("a1"), &Event{Type: EventClick})
	assert.Equal(t, []string{"doc-first", "doc-capture", "wrap-capture"}, order)
	assert.Equal(t, 2, doc.ListenerCount(EventClick))
}

func TestClosestWithAttr(t *testing.T) {
	doc, err := ParseString(page, "")
	require.NoError(t, err)

	link := doc.ElementByID("a1")
	assert.Nil(t, link.ClosestWithAttr("data-mark"))

	doc.ElementByID("wrap").SetAttr("data-mark", "1")
	got := link.ClosestWithAttr("data-mark")
	require.NotNil(t, got)
	assert.True(t, got.Same(doc.ElementByID("wrap")))

	link.SetAttr("data-mark", "2")
	assert.True(t, link.ClosestWithAttr("data-mark").Same(link))
}
