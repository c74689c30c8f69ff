package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/crisisguard-client/internal/dom"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/tooltip"
)

// stubClock никогда не срабатывает сам.
type stubClock struct{}

type stubTimer struct{}

func (stubTimer) Stop() bool { return true }

func (stubClock) AfterFunc(time.Duration, func()) tooltip.Timer { return stubTimer{} }

type fakeClassifier struct {
	mu       sync.Mutex
	calls    []string
	inFlight int
	maxSeen  int
	verdicts map[string]string
	err      error
}

func (c *fakeClassifier) Classify(_ context.Context, link string) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, link)
	c.inFlight++
	if c.inFlight > c.maxSeen {
		c.maxSeen = c.inFlight
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if c.err != nil {
		return "", c.err
	}
	if v, ok := c.verdicts[link]; ok {
		return v, nil
	}
	return "benign", nil
}

func newScanner(c *fakeClassifier) *Scanner {
	return New(c, nil, nil, zap.NewNop(), Options{Tooltip: tooltip.Options{Clock: stubClock{}}})
}

func parse(t *testing.T, body string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString("<html><body>"+body+"</body></html>", "https://page.example/")
	require.NoError(t, err)
	return doc
}

func clickAllowed(doc *dom.Document, el *dom.Element) bool {
	return doc.Dispatch(el, &dom.Event{Type: dom.EventClick})
}

func TestScanDisablesInsecureAndMalicious(t *testing.T) {
	doc := parse(t, `
		<a id="a" href="http://a.example">a</a>
		<a id="b" href="https://b.example">b</a>
		<a id="c" href="https://c.example">c</a>`)
	c := &fakeClassifier{verdicts: map[string]string{"https://b.example": "MALICIOUS"}}

	records, err := newScanner(c).Scan(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, domain.VerdictInsecure, records[0].Verdict)
	assert.Equal(t, domain.VerdictMalicious, records[1].Verdict)
	assert.Equal(t, domain.VerdictSafe, records[2].Verdict)

	// Для http-ссылки сервис не вызывается
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, c.calls)
	assert.Equal(t, 1, c.maxSeen)

	assert.False(t, clickAllowed(doc, doc.ElementByID("a")))
	assert.False(t, clickAllowed(doc, doc.ElementByID("b")))
	assert.True(t, clickAllowed(doc, doc.ElementByID("c")))
	assert.False(t, doc.ElementByID("c").HasAttr(DisabledAttr))

	// Разовая подсказка для INSECURE
	tip := tooltip.For(doc, tooltip.Options{})
	assert.True(t, tip.Visible())
	assert.Equal(t, WarningInsecure, tip.Text())
}

func TestScanFailOpen(t *testing.T) {
	doc := parse(t, `<a id="x" href="https://x.example">x</a>`)
	c := &fakeClassifier{err: errors.New("connection refused")}

	records, err := newScanner(c).Scan(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPending, records[0].Verdict)
	assert.True(t, clickAllowed(doc, doc.ElementByID("x")))
	assert.Empty(t, doc.ElementByID("x").Style("text-decoration"))
}

func TestScanZeroLinks(t *testing.T) {
	doc := parse(t, `<p>no links here</p><a name="anchor-only">x</a>`)
	c := &fakeClassifier{}

	records, err := newScanner(c).Scan(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, c.calls)
	assert.Nil(t, doc.ElementByID(tooltip.NodeID))
}

func TestScanSkipsNonNetworkLinks(t *testing.T) {
	doc := parse(t, `<a href="mailto:x@example.com">m</a><a href="javascript:void(0)">j</a>`)
	c := &fakeClassifier{}

	records, err := newScanner(c).Scan(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, domain.VerdictPending, r.Verdict)
	}
	assert.Empty(t, c.calls)
}

func TestScanStopsOnCancel(t *testing.T) {
	doc := parse(t, `<a href="https://x.example">x</a><a href="https://y.example">y</a>`)
	c := &fakeClassifier{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := newScanner(c).Scan(ctx, doc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, records, 2)
	assert.Empty(t, c.calls)
}

func TestDisableIsIdempotent(t *testing.T) {
	once := parse(t, `<a id="x" href="https://x.example" style="color: blue">x</a>`)
	twice := parse(t, `<a id="x" href="https://x.example" style="color: blue">x</a>`)

	e1 := NewEnforcer(tooltip.New(once, tooltip.Options{Clock: stubClock{}}), time.Second)
	e2 := NewEnforcer(tooltip.New(twice, tooltip.Options{Clock: stubClock{}}), time.Second)

	assert.True(t, e1.Disable(once.ElementByID("x"), domain.VerdictMalicious))
	assert.True(t, e2.Disable(twice.ElementByID("x"), domain.VerdictMalicious))
	assert.False(t, e2.Disable(twice.ElementByID("x"), domain.VerdictMalicious))

	h1, err := once.HTML()
	require.NoError(t, err)
	h2, err := twice.HTML()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	for _, typ := range []dom.EventType{dom.EventMouseEnter, dom.EventMouseMove, dom.EventMouseLeave} {
		assert.Equal(t, once.ElementByID("x").ListenerCount(typ), twice.ElementByID("x").ListenerCount(typ), typ)
		assert.Equal(t, 1, twice.ElementByID("x").ListenerCount(typ), typ)
	}
	for _, typ := range blockedEvents {
		assert.Equal(t, 1, twice.ListenerCount(typ), typ)
		assert.Equal(t, once.ListenerCount(typ), twice.ListenerCount(typ), typ)
	}
}

func TestGuardInstalledOncePerDocument(t *testing.T) {
	doc := parse(t, `<a id="x" href="https://x.example">x</a><a id="y" href="https://y.example">y</a>`)
	e := NewEnforcer(tooltip.New(doc, tooltip.Options{Clock: stubClock{}}), time.Second)
	e.Disable(doc.ElementByID("x"), domain.VerdictMalicious)
	NewEnforcer(tooltip.New(doc, tooltip.Options{Clock: stubClock{}}), time.Second).
		Disable(doc.ElementByID("y"), domain.VerdictInsecure)

	for _, typ := range blockedEvents {
		assert.Equal(t, 1, doc.ListenerCount(typ), typ)
	}
}

func TestDisabledLinkBlockedBeforeAncestorCapture(t *testing.T) {
	doc := parse(t, `<div id="wrap"><a id="x" href="https://x.example"><span id="inner">x</span></a><a id="ok" href="https://ok.example">ok</a></div>`)

	// Обработчик страницы на предке останавливает распространение в capture
	ancestorSaw := 0
	doc.ElementByID("wrap").AddEventListener(dom.EventClick, func(ev *dom.Event) {
		ancestorSaw++
		ev.StopPropagation()
	}, true)

	e := NewEnforcer(tooltip.New(doc, tooltip.Options{Clock: stubClock{}}), time.Second)
	e.Disable(doc.ElementByID("x"), domain.VerdictMalicious)

	assert.False(t, doc.Dispatch(doc.ElementByID("x"), &dom.Event{Type: dom.EventClick}))
	assert.False(t, doc.Dispatch(doc.ElementByID("inner"), &dom.Event{Type: dom.EventClick}))
	assert.Zero(t, ancestorSaw)

	// Рабочая ссылка на той же странице не затронута
	assert.True(t, doc.Dispatch(doc.ElementByID("ok"), &dom.Event{Type: dom.EventClick}))
	assert.Equal(t, 1, ancestorSaw)
}

func TestDisabledLinkBlocksAllPrimaryEvents(t *testing.T) {
	doc := parse(t, `<div id="wrap"><a id="x" href="https://x.example">x</a></div>`)
	pageHandler := 0
	doc.ElementByID("x").AddEventListener(dom.EventClick, func(*dom.Event) { pageHandler++ }, false)
	doc.ElementByID("wrap").AddEventListener(dom.EventContextMenu, func(*dom.Event) { pageHandler++ }, false)

	e := NewEnforcer(tooltip.New(doc, tooltip.Options{Clock: stubClock{}}), time.Second)
	e.Disable(doc.ElementByID("x"), domain.VerdictMalicious)

	for _, typ := range blockedEvents {
		assert.False(t, doc.Dispatch(doc.ElementByID("x"), &dom.Event{Type: typ}), typ)
	}
	assert.Zero(t, pageHandler)
	assert.Equal(t, "line-through", doc.ElementByID("x").Style("text-decoration"))
	assert.True(t, strings.HasPrefix(doc.ElementByID("x").Style("filter"), "grayscale"))
}

func TestHoverDrivesTooltip(t *testing.T) {
	doc := parse(t, `<a id="x" href="https://x.example">x</a>`)
	tip := tooltip.New(doc, tooltip.Options{Clock: stubClock{}})
	e := NewEnforcer(tip, time.Second)
	link := doc.ElementByID("x")
	e.Disable(link, domain.VerdictMalicious)

	doc.Dispatch(link, &dom.Event{Type: dom.EventMouseEnter, ClientX: 10, ClientY: 20})
	assert.True(t, tip.Visible())
	assert.Equal(t, WarningMalicious, tip.Text())

	doc.Dispatch(link, &dom.Event{Type: dom.EventMouseMove, ClientX: 30, ClientY: 40})
	x, y := tip.Position()
	assert.Equal(t, 42.0, x)
	assert.Equal(t, 52.0, y)

	doc.Dispatch(link, &dom.Event{Type: dom.EventMouseLeave})
	assert.False(t, tip.Visible())
}

func TestWarningTextsDiffer(t *testing.T) {
	assert.NotEqual(t, Warning(domain.VerdictInsecure), Warning(domain.VerdictMalicious))
}

func TestScanIDFromContext(t *testing.T) {
	_, ok := ScanIDFrom(context.Background())
	assert.False(t, ok)

	id, ok := ScanIDFrom(WithScanID(context.Background(), "scan-1"))
	assert.True(t, ok)
	assert.Equal(t, "scan-1", id)
}
