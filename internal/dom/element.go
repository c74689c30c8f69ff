package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Element — ссылка на узел страницы. Живет не дольше своего Document.
type Element struct {
	doc *Document
	sel *goquery.Selection
}

func (e *Element) node() *html.Node {
	return e.sel.Nodes[0]
}

// Same — указывают ли два Element на один узел.
func (e *Element) Same(other *Element) bool {
	return other != nil && e.node() == other.node()
}

func (e *Element) Document() *Document { return e.doc }

func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.sel.Attr(name)
}

func (e *Element) HasAttr(name string) bool {
	_, ok := e.Attr(name)
	return ok
}

func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.SetAttr(name, value)
}

func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.RemoveAttr(name)
}

func (e *Element) Text() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return strings.TrimSpace(e.sel.Text())
}

func (e *Element) SetText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.SetText(text)
}

// Href — абсолютный адрес ссылки (относительные разрешаются от base документа).
// Если href не разбирается, возвращается как есть.
func (e *Element) Href() string {
	raw, ok := e.Attr("href")
	if !ok {
		return ""
	}
	u, err := e.doc.resolve(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return u.String()
}

// Style возвращает значение inline-свойства или "".
func (e *Element) Style(prop string) string {
	raw, _ := e.Attr("style")
	for _, d := range parseStyle(raw) {
		if d.prop == prop {
			return d.value
		}
	}
	return ""
}

// SetStyle задает inline-свойство, сохраняя порядок остальных.
func (e *Element) SetStyle(prop, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	raw, _ := e.sel.Attr("style")
	decls := parseStyle(raw)
	found := false
	for i := range decls {
		if decls[i].prop == prop {
			decls[i].value = value
			found = true
		}
	}
	if !found {
		decls = append(decls, styleDecl{prop: prop, value: value})
	}
	e.sel.SetAttr("style", formatStyle(decls))
}

// Rect — геометрию считает хост (браузер, рендерер); по умолчанию нули.
func (e *Element) Rect() Rect {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.rects[e.node()]
}

func (e *Element) SetRect(r Rect) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.doc.rects[e.node()] = r
}

// ClosestWithAttr возвращает сам элемент или ближайшего предка с атрибутом name.
func (e *Element) ClosestWithAttr(name string) *Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for n := e.node(); n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range n.Attr {
			if a.Key == name {
				return &Element{doc: e.doc, sel: e.doc.doc.FindNodes(n)}
			}
		}
	}
	return nil
}

// AddEventListener вешает обработчик; при capture=true в фазе перехвата.
func (e *Element) AddEventListener(typ EventType, fn Listener, capture bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	n := e.node()
	e.doc.listeners[n] = append(e.doc.listeners[n], listenerEntry{typ: typ, fn: fn, capture: capture})
}

// ListenerCount — сколько обработчиков данного типа висит на элементе.
func (e *Element) ListenerCount(typ EventType) int {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	cnt := 0
	for _, l := range e.doc.listeners[e.node()] {
		if l.typ == typ {
			cnt++
		}
	}
	return cnt
}

type styleDecl struct {
	prop  string
	value string
}

func parseStyle(raw string) []styleDecl {
	var out []styleDecl
	for _, part := range strings.Split(raw, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		out = append(out, styleDecl{prop: prop, value: strings.TrimSpace(value)})
	}
	return out
}

func formatStyle(decls []styleDecl) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.value)
	}
	return strings.Join(parts, "; ")
}
