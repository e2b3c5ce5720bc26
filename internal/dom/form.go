package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Control type names returned by ControlType.
const (
	TypeText     = "text"
	TypeTextarea = "textarea"
	TypeSelect   = "select"
	TypeCheckbox = "checkbox"
	TypeFile     = "file"
)

// ControlType returns the effective type of a form control: the lower-cased
// type attribute for inputs ("text" when absent), or the tag name for
// select and textarea. Non-controls return "".
func ControlType(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	switch n.Data {
	case "input":
		t := strings.ToLower(strings.TrimSpace(AttrOr(n, "type", "")))
		if t == "" {
			return TypeText
		}
		return t
	case "select":
		return TypeSelect
	case "textarea":
		return TypeTextarea
	}
	return ""
}

// DeclaresType reports whether an input carries an explicit type attribute
// equal to t. Untyped inputs behave like text fields but do not match
// input[type='text'].
func DeclaresType(n *html.Node, t string) bool {
	v, ok := Attr(n, "type")
	return ok && strings.EqualFold(strings.TrimSpace(v), t)
}

// Name returns the control name.
func Name(n *html.Node) string {
	return AttrOr(n, "name", "")
}

// Value returns the current value of a form control the way a browser
// reports element.value.
func Value(n *html.Node) string {
	switch ControlType(n) {
	case "":
		return ""
	case TypeTextarea:
		return Text(n)
	case TypeSelect:
		if opt := selectedOption(n); opt != nil {
			return optionValue(opt)
		}
		return ""
	case TypeCheckbox, "radio":
		return AttrOr(n, "value", "on")
	default:
		return AttrOr(n, "value", "")
	}
}

// Checked reports the checkedness of a checkbox or radio input.
func Checked(n *html.Node) bool {
	_, ok := Attr(n, "checked")
	return ok
}

// SetChecked updates checkedness.
func SetChecked(n *html.Node, on bool) {
	if on {
		SetAttr(n, "checked", "")
		return
	}
	RemoveAttr(n, "checked")
}

// SetValue updates a control's value. For selects it selects the first
// option whose value matches; it reports false when no option matched.
func SetValue(n *html.Node, value string) bool {
	switch ControlType(n) {
	case "":
		return false
	case TypeTextarea:
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
		return true
	case TypeSelect:
		opts := options(n)
		var match *html.Node
		for _, o := range opts {
			if optionValue(o) == value {
				match = o
				break
			}
		}
		if match == nil {
			return false
		}
		for _, o := range opts {
			RemoveAttr(o, "selected")
		}
		SetAttr(match, "selected", "")
		return true
	default:
		SetAttr(n, "value", value)
		return true
	}
}

func options(sel *html.Node) []*html.Node {
	return QueryAll(sel, ".//option")
}

// selectedOption returns the last option marked selected, or the first
// option when none is.
func selectedOption(sel *html.Node) *html.Node {
	opts := options(sel)
	var last *html.Node
	for _, o := range opts {
		if _, ok := Attr(o, "selected"); ok {
			last = o
		}
	}
	if last != nil {
		return last
	}
	if len(opts) > 0 {
		return opts[0]
	}
	return nil
}

func optionValue(opt *html.Node) string {
	if v, ok := Attr(opt, "value"); ok {
		return v
	}
	return strings.Join(strings.Fields(Text(opt)), " ")
}
