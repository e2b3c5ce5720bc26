package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/net/html"

	"github.com/homectlx/homectl/internal/dom"
	"github.com/homectlx/homectl/internal/events"
	"github.com/homectlx/homectl/internal/invoke"
)

type target struct {
	node      *html.Node
	parent    *html.Node
	execute   bool
	invert    bool
	bring     bool
	container string
}

func (e *Engine) lookup(id string) (target, error) {
	var t target
	e.doc.Read(func(root *html.Node) {
		t.node = dom.ElementByID(root, id)
		if t.node == nil {
			return
		}
		t.parent = t.node.Parent
		t.execute = dom.HasClass(t.node, ClassExecute)
		t.invert = dom.HasClass(t.node, ClassInvertSelection)
		t.bring = dom.HasClass(t.node, ClassBringIntoView)
		t.container, _ = dom.Data(t.node, AttrContainer)
	})
	if t.node == nil {
		return t, fmt.Errorf("%w: no element with id %q", ErrNotExecutable, id)
	}
	return t, nil
}

// Click activates the element with the given id. Triggers run the pipeline
// immediately; invert-selection and bring-into-view controls run their
// page behavior after it.
func (e *Engine) Click(ctx context.Context, id string) (invoke.Outcome, error) {
	t, err := e.lookup(id)
	if err != nil {
		return invoke.Outcome{}, err
	}

	var out invoke.Outcome
	if t.execute {
		out, err = e.Process(ctx, t.node)
	}
	if t.invert {
		e.invertSelection(t.parent)
	}
	if t.bring {
		e.bringIntoView(t.container)
	}

	if !t.execute && !t.invert && !t.bring {
		return out, fmt.Errorf("%w: %q", ErrNotExecutable, id)
	}
	return out, err
}

// Input sets the value of a text, textarea or select control and, for
// triggers, schedules a debounced run.
func (e *Engine) Input(id, value string) error {
	t, err := e.lookup(id)
	if err != nil {
		return err
	}
	ok := true
	e.doc.Write(func(*html.Node) {
		ok = dom.SetValue(t.node, value)
	})
	if !ok {
		return fmt.Errorf("element %q has no option %q", id, value)
	}
	return e.changed(t)
}

// Check sets a checkbox or radio and, for triggers, schedules a debounced run.
func (e *Engine) Check(id string, on bool) error {
	t, err := e.lookup(id)
	if err != nil {
		return err
	}
	e.doc.Write(func(*html.Node) {
		dom.SetChecked(t.node, on)
	})
	return e.changed(t)
}

// SelectFiles stages a file selection on a file input and, for triggers,
// schedules a debounced run.
func (e *Engine) SelectFiles(id string, files ...dom.File) error {
	t, err := e.lookup(id)
	if err != nil {
		return err
	}
	var isFile bool
	e.doc.Read(func(*html.Node) {
		isFile = dom.ControlType(t.node) == dom.TypeFile
	})
	if !isFile {
		return fmt.Errorf("element %q is not a file input", id)
	}
	e.doc.StageFiles(t.node, files...)
	return e.changed(t)
}

func (e *Engine) changed(t target) error {
	if !t.execute {
		return nil
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	origin := t.node
	e.debouncer.Trigger(func() {
		_, err := e.Process(context.Background(), origin)
		if err != nil && !errors.Is(err, ErrClosed) {
			e.logger.Debug("debounced run ended", "error", err)
		}
	})
	return nil
}

// invertSelection toggles every checkbox below parent.
func (e *Engine) invertSelection(parent *html.Node) {
	if parent == nil {
		return
	}
	n := 0
	e.doc.Write(func(*html.Node) {
		for _, el := range dom.Controls(parent) {
			if dom.ControlType(el) != dom.TypeCheckbox {
				continue
			}
			dom.SetChecked(el, !dom.Checked(el))
			n++
		}
	})
	e.logger.Debug("selection inverted", "checkboxes", n)
}

// bringIntoView moves document focus to the container after the focus delay.
func (e *Engine) bringIntoView(container string) {
	if container == "" {
		return
	}
	e.afterFunc(e.focusDelay, func() {
		e.doc.SetFocus(container)
		e.hub.Publish(events.FocusChanged, map[string]any{"id": container})
	})
}
