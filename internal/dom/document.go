// Package dom holds the live document the engine reads form input from and
// patches with server-rendered fragments.
//
// The tree is a golang.org/x/net/html node graph guarded by a read/write
// mutex. Node helpers (node.go, form.go) never lock; callers run them inside
// Read or Write. Staged file selections live next to the tree, keyed by the
// input node, because markup cannot carry them.
package dom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// File is one staged selection of a file input.
type File struct {
	Name string
	Path string
}

// Document is the live document tree.
type Document struct {
	mu   sync.RWMutex
	root *html.Node

	filesMu sync.Mutex
	files   map[*html.Node][]File

	focusMu sync.Mutex
	focus   string
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return New(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// New wraps an existing tree.
func New(root *html.Node) *Document {
	return &Document{
		root:  root,
		files: make(map[*html.Node][]File),
	}
}

// Read runs fn with the tree under a read lock.
func (d *Document) Read(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// Write runs fn with the tree under the write lock.
func (d *Document) Write(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// ElementByID returns the element with the given id, or nil.
func (d *Document) ElementByID(id string) *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return ElementByID(d.root, id)
}

// OuterHTML renders the element with the given id.
func (d *Document) OuterHTML(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := ElementByID(d.root, id)
	if n == nil {
		return "", false
	}
	return OuterHTML(n), true
}

// Render writes the whole document.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// String renders the whole document, or "" on error.
func (d *Document) String() string {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

// ReplaceOuter replaces the element with the given id by the parsed markup,
// like assigning element.outerHTML. It returns the element carrying the id
// after the swap (nil if the markup dropped the id) and whether a target
// existed at all. A missing target leaves the document untouched.
func (d *Document) ReplaceOuter(id, markup string) (*html.Node, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	target := ElementByID(d.root, id)
	if target == nil {
		return nil, false, nil
	}
	parent := target.Parent
	if parent == nil {
		return nil, true, fmt.Errorf("element %q has no parent", id)
	}

	ctx := parent
	if ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, true, fmt.Errorf("parse fragment %q: %w", id, err)
	}

	for _, n := range nodes {
		parent.InsertBefore(n, target)
	}
	parent.RemoveChild(target)
	d.forgetFiles(target)

	return ElementByID(d.root, id), true, nil
}

// StageFiles records the file selection of a file input, replacing any
// previous selection.
func (d *Document) StageFiles(input *html.Node, files ...File) {
	d.filesMu.Lock()
	defer d.filesMu.Unlock()
	if len(files) == 0 {
		delete(d.files, input)
		return
	}
	d.files[input] = append([]File(nil), files...)
}

// Files returns the staged selection of a file input in selection order.
// It does not take the tree lock and is safe to call inside Read.
func (d *Document) Files(input *html.Node) []File {
	d.filesMu.Lock()
	defer d.filesMu.Unlock()
	return append([]File(nil), d.files[input]...)
}

// forgetFiles drops staged selections of inputs inside a removed subtree.
func (d *Document) forgetFiles(removed *html.Node) {
	d.filesMu.Lock()
	defer d.filesMu.Unlock()
	for n := range d.files {
		if Contains(removed, n) {
			delete(d.files, n)
		}
	}
}

// SetFocus records the container brought into view.
func (d *Document) SetFocus(id string) {
	d.focusMu.Lock()
	d.focus = id
	d.focusMu.Unlock()
}

// Focus returns the container last brought into view.
func (d *Document) Focus() string {
	d.focusMu.Lock()
	defer d.focusMu.Unlock()
	return d.focus
}
