package catalog

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Class names used by the map page markup.
const (
	collapsibleClass    = "route-map-collapsible"
	collapsibleBarClass = "route-map-collapsible-bar"
	routeOptionClass    = "route-option"
)

// UncategorizedName heads routes found outside any collapsible section.
const UncategorizedName = "Lainnya"

// ExtractHTML builds a catalog from the map page. Every collapsible section
// becomes a category; every route checkbox inside a route option becomes a
// route. Checkboxes outside any section are collected into a trailing
// UncategorizedName category. Routes without a display type default to Ways.
func ExtractHTML(r io.Reader) (*Catalog, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	c := &Catalog{}
	var loose []Route

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if hasClass(n, collapsibleClass) {
				if cat := extractCategory(n); len(cat.Routes) > 0 {
					c.Categories = append(c.Categories, cat)
				}
				return
			}
			if route, ok := routeFromInput(n); ok {
				loose = append(loose, route)
				return
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)

	if len(loose) > 0 {
		c.Categories = append(c.Categories, Category{Name: UncategorizedName, Routes: loose})
	}

	return c, nil
}

func extractCategory(section *html.Node) Category {
	var cat Category

	if bar := find(section, func(n *html.Node) bool { return hasClass(n, collapsibleBarClass) }); bar != nil {
		if span := find(bar, func(n *html.Node) bool { return n.DataAtom == atom.Span }); span != nil {
			cat.Name = strings.TrimSpace(textContent(span))
		}
	}

	var walk func(n *html.Node, inOption bool)
	walk = func(n *html.Node, inOption bool) {
		if n.Type == html.ElementNode {
			inOption = inOption || hasClass(n, routeOptionClass)
			if inOption {
				if route, ok := routeFromInput(n); ok {
					cat.Routes = append(cat.Routes, route)
					return
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch, inOption)
		}
	}
	walk(section, false)

	return cat
}

func routeFromInput(n *html.Node) (Route, bool) {
	if n.DataAtom != atom.Input || !strings.EqualFold(attr(n, "type"), "checkbox") {
		return Route{}, false
	}

	id := attr(n, "data-relation-id")
	if id == "" {
		id = attr(n, "data-relation-ids")
	}
	if id == "" {
		return Route{}, false
	}

	t := DisplayType(attr(n, "data-display-type"))
	if t == "" {
		t = Ways
	}

	return Route{
		Name:       inputLabel(n),
		RelationID: strings.TrimSpace(id),
		Color:      attr(n, "data-route-color"),
		Type:       t,
	}, true
}

// inputLabel prefers the text right after the checkbox and falls back to the
// enclosing label.
func inputLabel(n *html.Node) string {
	if s := n.NextSibling; s != nil && s.Type == html.TextNode {
		if t := strings.TrimSpace(s.Data); t != "" {
			return collapseSpace(t)
		}
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.DataAtom == atom.Label {
			return collapseSpace(textContent(p))
		}
	}

	return ""
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.ElementNode && match(ch) {
			return ch
		}
		if got := find(ch, match); got != nil {
			return got
		}
	}

	return nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)

	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}

	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
