package dom

import (
	"bytes"
	"slices"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// The helpers in this file operate on bare nodes and never lock. Call them
// from inside Document.Read or Document.Write.

// Attr returns the value of attribute key and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or def when absent.
func AttrOr(n *html.Node, key, def string) string {
	if v, ok := Attr(n, key); ok {
		return v
	}
	return def
}

// SetAttr sets or adds an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr drops an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == key
	})
}

// Data returns a data-* attribute, mirroring element.dataset.
func Data(n *html.Node, name string) (string, bool) {
	return Attr(n, "data-"+name)
}

// Classes returns the class list of n.
func Classes(n *html.Node) []string {
	return strings.Fields(AttrOr(n, "class", ""))
}

// HasClass reports whether n carries class c.
func HasClass(n *html.Node, c string) bool {
	return slices.Contains(Classes(n), c)
}

// AddClass adds c to the class list. It is a no-op when already present.
func AddClass(n *html.Node, c string) {
	cls := Classes(n)
	if slices.Contains(cls, c) {
		return
	}
	SetAttr(n, "class", strings.Join(append(cls, c), " "))
}

// RemoveClass removes c from the class list.
func RemoveClass(n *html.Node, c string) {
	cls := Classes(n)
	if !slices.Contains(cls, c) {
		return
	}
	cls = slices.DeleteFunc(cls, func(s string) bool { return s == c })
	if len(cls) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(cls, " "))
}

// Matcher selects element nodes.
type Matcher func(n *html.Node) bool

// Tag matches elements by (lower-case) tag name.
func Tag(name string) Matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == name
	}
}

// Class matches elements carrying a class.
func Class(c string) Matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && HasClass(n, c)
	}
}

// Closest walks from n up through its ancestors and returns the first
// element accepted by m, n itself included.
func Closest(n *html.Node, m Matcher) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && m(cur) {
			return cur
		}
	}
	return nil
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

// ElementByID finds the first element with the given id in document order.
func ElementByID(root *html.Node, id string) *html.Node {
	if root == nil || id == "" {
		return nil
	}
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if v, ok := Attr(n, "id"); ok && v == id {
				found = n
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

// QueryAll runs an XPath expression relative to n and returns the matches
// in document order. Invalid expressions return nil; every expression used
// by this module is a constant.
func QueryAll(n *html.Node, expr string) []*html.Node {
	if n == nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(n, expr)
	if err != nil {
		return nil
	}
	if len(nodes) > 1 {
		sortDocumentOrder(n, nodes)
	}
	return nodes
}

// sortDocumentOrder sorts nodes, all descendants of root, by their
// pre-order position. htmlquery yields nested matches out of order.
func sortDocumentOrder(root *html.Node, nodes []*html.Node) {
	pos := make(map[*html.Node]int)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		pos[n] = len(pos)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	slices.SortStableFunc(nodes, func(a, b *html.Node) int {
		return pos[a] - pos[b]
	})
}

// Controls returns the form-bearing descendants of container (input,
// select, textarea) in document order.
func Controls(container *html.Node) []*html.Node {
	return QueryAll(container, ".//*[self::input or self::select or self::textarea]")
}

// WithClass returns every element under root carrying class c, root included.
func WithClass(root *html.Node, c string) []*html.Node {
	var out []*html.Node
	if root != nil && root.Type == html.ElementNode && HasClass(root, c) {
		out = append(out, root)
	}
	expr := ".//*[contains(concat(' ', normalize-space(@class), ' '), ' " + c + " ')]"
	return append(out, QueryAll(root, expr)...)
}

// WithAttr returns every element under root declaring attribute key, root included.
func WithAttr(root *html.Node, key string) []*html.Node {
	var out []*html.Node
	if _, ok := Attr(root, key); ok && root.Type == html.ElementNode {
		out = append(out, root)
	}
	return append(out, QueryAll(root, ".//*[@"+key+"]")...)
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return htmlquery.InnerText(n)
}

// OuterHTML renders n and its subtree.
func OuterHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}
