// Package dom — минимальная модель страницы поверх goquery: элементы,
// атрибуты, inline-стили, геометрия и DOM-подобная доставка событий
// (capture -> target -> bubble). Ей пользуются сканер ссылок и подсказка.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type listenerEntry struct {
	typ     EventType
	fn      Listener
	capture bool
}

// Document — одна загруженная страница. Все изменения узлов идут под mu:
// таймеры подсказки трогают DOM из своих горутин.
type Document struct {
	mu        sync.Mutex
	doc       *goquery.Document
	base      *url.URL
	listeners map[*html.Node][]listenerEntry
	rects     map[*html.Node]Rect
	values    map[any]any // состояние, привязанное к странице (подсказка)
}

// Parse разбирает HTML. baseURL нужен для разрешения относительных href,
// может быть пустым.
func Parse(r io.Reader, baseURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse html: %w", err)
	}

	d := &Document{
		doc:       doc,
		listeners: make(map[*html.Node][]listenerEntry),
		rects:     make(map[*html.Node]Rect),
		values:    make(map[any]any),
	}

	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("dom: parse base url: %w", err)
		}
		d.base = base
	}
	// <base href> в документе важнее адреса страницы
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := d.resolve(href); err == nil {
			d.base = u
		}
	}
	return d, nil
}

func ParseString(s, baseURL string) (*Document, error) {
	return Parse(strings.NewReader(s), baseURL)
}

// Anchors возвращает ссылки с href в порядке документа.
func (d *Document) Anchors() []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*Element
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{doc: d, sel: s})
	})
	return out
}

// ElementByID ищет элемент по id, nil если нет.
func (d *Document) ElementByID(id string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.doc.Find("#" + id).First()
	if s.Length() == 0 {
		return nil
	}
	return &Element{doc: d, sel: s}
}

// CreateElement создает элемент и добавляет его последним ребенком body.
func (d *Document) CreateElement(tag, id string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	node := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	if id != "" {
		node.Attr = append(node.Attr, html.Attribute{Key: "id", Val: id})
	}

	body := d.doc.Find("body").First()
	if body.Length() == 0 {
		// html.Parse всегда достраивает body, но документ мог быть фрагментом
		d.doc.Selection.Nodes[0].AppendChild(node)
	} else {
		body.Nodes[0].AppendChild(node)
	}
	return &Element{doc: d, sel: d.doc.FindNodes(node)}
}

// Render пишет текущее состояние документа (после всех мутаций).
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, n := range d.doc.Nodes {
		if err := html.Render(w, n); err != nil {
			return fmt.Errorf("dom: render: %w", err)
		}
	}
	return nil
}

func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BaseURL — адрес, относительно которого разрешаются ссылки.
func (d *Document) BaseURL() string {
	if d.base == nil {
		return ""
	}
	return d.base.String()
}

func (d *Document) resolve(href string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, err
	}
	if d.base != nil {
		u = d.base.ResolveReference(u)
	}
	return u, nil
}

// LoadOrStore возвращает значение по key, создавая его через create при
// первом обращении. Значение живет ровно столько, сколько документ.
func (d *Document) LoadOrStore(key any, create func() any) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.values[key]; ok {
		return v
	}
	v := create()
	d.values[key] = v
	return v
}

// AddEventListener вешает обработчик на корень документа. Его capture-обработчики
// видят событие раньше любого элемента страницы.
func (d *Document) AddEventListener(typ EventType, fn Listener, capture bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	root := d.doc.Nodes[0]
	d.listeners[root] = append(d.listeners[root], listenerEntry{typ: typ, fn: fn, capture: capture})
}

// PrependEventListener ставит обработчик корня первым в очередь.
func (d *Document) PrependEventListener(typ EventType, fn Listener, capture bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	root := d.doc.Nodes[0]
	d.listeners[root] = append([]listenerEntry{{typ: typ, fn: fn, capture: capture}}, d.listeners[root]...)
}

// ListenerCount — сколько обработчиков данного типа висит на корне.
func (d *Document) ListenerCount(typ EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	cnt := 0
	for _, l := range d.listeners[d.doc.Nodes[0]] {
		if l.typ == typ {
			cnt++
		}
	}
	return cnt
}

// Dispatch доставляет событие target: фаза capture от корня к родителю,
// затем сама цель, затем всплытие (для всплывающих типов).
// Возвращает false, если кто-то вызвал PreventDefault — действие по
// умолчанию (навигация, контекстное меню) выполнять нельзя.
func (d *Document) Dispatch(target *Element, ev *Event) bool {
	ev.Target = target

	d.mu.Lock()
	tn := target.node()
	var path []*html.Node // от корня к родителю цели
	for n := tn.Parent; n != nil; n = n.Parent {
		path = append([]*html.Node{n}, path...)
	}
	snapshot := make(map[*html.Node][]listenerEntry, len(path)+1)
	for _, n := range append(path, tn) {
		if ls := d.listeners[n]; len(ls) > 0 {
			snapshot[n] = append([]listenerEntry(nil), ls...)
		}
	}
	d.mu.Unlock()

	// Обработчики вызываем без блокировки: они сами меняют DOM
	invoke := func(n *html.Node, match func(listenerEntry) bool) {
		for _, l := range snapshot[n] {
			if l.typ != ev.Type || !match(l) {
				continue
			}
			l.fn(ev)
			if ev.immediateStopped {
				return
			}
		}
	}

	for _, n := range path {
		invoke(n, func(l listenerEntry) bool { return l.capture })
		if ev.stopped {
			return !ev.defaultPrevented
		}
	}

	invoke(tn, func(l listenerEntry) bool { return l.capture })
	if !ev.immediateStopped {
		invoke(tn, func(l listenerEntry) bool { return !l.capture })
	}
	if ev.stopped || !ev.Type.Bubbles() {
		return !ev.defaultPrevented
	}

	for i := len(path) - 1; i >= 0; i-- {
		invoke(path[i], func(l listenerEntry) bool { return !l.capture })
		if ev.stopped {
			break
		}
	}
	return !ev.defaultPrevented
}
