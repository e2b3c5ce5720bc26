// Package collect turns the controls around a submission origin into an
// argument map.
package collect

import (
	"github.com/homectlx/homectl/internal/args"
	"github.com/homectlx/homectl/internal/dom"
	"golang.org/x/net/html"
)

// Origin attributes consumed from server-rendered markup.
const (
	AttrFunc  = "func"  // data-func: command identifier
	AttrParam = "param" // data-param: fixed parameter name
	AttrValue = "value" // data-value: fixed parameter value
)

// Container locates one scoping container from the origin.
type Container struct {
	Name  string
	Match dom.Matcher
}

// Containers is the scan order. Every container is scanned in full, so the
// nearest group is read last and its scalars overwrite same-named values
// from the enclosing form. A checkbox or file input shared by several
// containers contributes only once.
var Containers = []Container{
	{Name: "form", Match: dom.Tag("form")},
	{Name: "fieldset", Match: dom.Tag("fieldset")},
	{Name: "class-fieldset", Match: dom.Class("fieldset")},
}

// FileField is a file input whose selection still has to be read.
type FileField struct {
	Name  string
	Files []dom.File
}

// Result is the synchronous part of a collection pass.
type Result struct {
	Command string
	Args    args.Map
	Files   []FileField
	// Fixed names the origin's fixed parameter, if it has one.
	Fixed string
}

// WithUploads returns Args with the resolved uploads folded in. The fixed
// parameter keeps its value.
func (r Result) WithUploads(uploaded args.Map) args.Map {
	out := make(args.Map, len(r.Args)+len(uploaded))
	out.Merge(r.Args)
	out.Merge(uploaded)
	if r.Fixed != "" {
		out[r.Fixed] = r.Args[r.Fixed]
	}
	return out
}

// Pending reports whether uploads must be resolved before submission.
func (r Result) Pending() bool {
	for _, f := range r.Files {
		if len(f.Files) > 0 {
			return true
		}
	}
	return false
}

// Collect scans the containers of origin and builds the argument map.
func Collect(doc *dom.Document, origin *html.Node) Result {
	var res Result
	doc.Read(func(_ *html.Node) {
		res = collect(doc, origin)
	})
	return res
}

func collect(doc *dom.Document, origin *html.Node) Result {
	res := Result{
		Command: dom.AttrOr(origin, "data-"+AttrFunc, ""),
		Args:    args.Map{},
	}

	appended := make(map[*html.Node]bool)
	for _, c := range Containers {
		container := dom.Closest(origin, c.Match)
		if container == nil {
			continue
		}
		for _, el := range dom.Controls(container) {
			visit(doc, el, &res, appended)
		}
	}

	// Fixed parameters always win over collected fields.
	if param, ok := dom.Data(origin, AttrParam); ok && param != "" {
		value, _ := dom.Data(origin, AttrValue)
		res.Args[param] = args.Scalar(value)
		res.Fixed = param
	}
	return res
}

// visit reads el into res. Scalars are rewritten on every visit; appends
// happen once per element, tracked in appended.
func visit(doc *dom.Document, el *html.Node, res *Result, appended map[*html.Node]bool) {
	key := dom.Name(el)
	if key == "" {
		return
	}

	switch {
	case el.Data == "textarea" || el.Data == "select" || dom.DeclaresType(el, dom.TypeText):
		res.Args[key] = args.Scalar(dom.Value(el))
	case dom.ControlType(el) == dom.TypeCheckbox:
		cur, ok := res.Args[key]
		if !ok || cur.Kind() != args.KindMulti {
			cur = args.Multi()
		}
		if dom.Checked(el) && !appended[el] {
			cur = cur.Append(dom.Value(el))
			appended[el] = true
		}
		res.Args[key] = cur
	case dom.ControlType(el) == dom.TypeFile:
		files := doc.Files(el)
		if len(files) == 0 || appended[el] {
			return
		}
		appended[el] = true
		res.Files = append(res.Files, FileField{Name: key, Files: files})
	default:
		res.Args[key] = args.Scalar(dom.Value(el))
	}
}
