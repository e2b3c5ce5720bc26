package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/homectlx/homectl/internal/bootstrap"
	"github.com/homectlx/homectl/internal/collect"
	"github.com/homectlx/homectl/internal/dom"
	"github.com/homectlx/homectl/internal/events"
	"github.com/homectlx/homectl/internal/gate"
	"github.com/homectlx/homectl/internal/invoke"
	"github.com/homectlx/homectl/internal/journal"
	"github.com/homectlx/homectl/internal/metrics"
	"github.com/homectlx/homectl/internal/refresh"
	"github.com/homectlx/homectl/internal/upload"
)

// Markup classes the engine reacts to or maintains.
const (
	ClassExecute         = "execute"
	ClassInactive        = "inactive"
	ClassInvertSelection = "invert-selection"
	ClassBringIntoView   = "bring_into_view"

	// AttrContainer (data-container) names the element bring-into-view focuses.
	AttrContainer = "container"
)

// DefaultFocusDelay is how long bring-into-view waits before moving focus.
const DefaultFocusDelay = time.Second

var (
	// ErrBusy is returned when a trigger arrives while a command is in flight.
	ErrBusy = errors.New("a command is already in flight")
	// ErrNotExecutable is returned for elements that trigger nothing.
	ErrNotExecutable = errors.New("element is not executable")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine is closed")
)

// Recorder persists invocation outcomes.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

type Options struct {
	Caller         invoke.Caller
	ReadFile       upload.ReadFunc
	DebounceWindow time.Duration
	FocusDelay     time.Duration
	AfterFunc      gate.AfterFunc
	Hub            *events.Hub
	Metrics        *metrics.Metrics
	Journal        Recorder
	Logger         *slog.Logger
}

type Engine struct {
	doc       *dom.Document
	gate      *gate.Gate
	debouncer *gate.Debouncer
	uploads   *upload.Coordinator
	invoker   *invoke.Invoker
	refresh   *refresh.Scheduler
	hub       *events.Hub
	metrics   *metrics.Metrics
	journal   Recorder
	logger    *slog.Logger

	afterFunc  gate.AfterFunc
	focusDelay time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	active atomic.Int64
}

func New(doc *dom.Document, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	afterFunc := opts.AfterFunc
	if afterFunc == nil {
		afterFunc = func(d time.Duration, fn func()) gate.Timer { return time.AfterFunc(d, fn) }
	}
	focusDelay := opts.FocusDelay
	if focusDelay <= 0 {
		focusDelay = DefaultFocusDelay
	}

	e := &Engine{
		doc:        doc,
		gate:       gate.New(),
		debouncer:  gate.NewDebouncer(opts.DebounceWindow, afterFunc),
		uploads:    upload.New(opts.ReadFile, logger),
		hub:        opts.Hub,
		metrics:    opts.Metrics,
		journal:    opts.Journal,
		logger:     logger.With("component", "engine"),
		afterFunc:  afterFunc,
		focusDelay: focusDelay,
	}

	e.invoker = invoke.New(doc, e.gate, opts.Caller, invoke.Options{
		Hub:     opts.Hub,
		Metrics: opts.Metrics,
		Logger:  logger,
	})
	e.refresh = refresh.New(doc, e.onRefresh, refresh.Options{
		AfterFunc: afterFunc,
		Logger:    logger,
		Hub:       opts.Hub,
		Metrics:   opts.Metrics,
	})
	e.invoker.SetRefresh(e.refresh)
	e.gate.OnChange(e.mirrorGate)

	return e
}

// Document returns the document the engine drives.
func (e *Engine) Document() *dom.Document { return e.doc }

// Busy reports whether a command is in flight.
func (e *Engine) Busy() bool { return e.gate.Busy() }

// RefreshScheduled reports whether fragment key has armed refresh timers.
func (e *Engine) RefreshScheduled(key string) bool { return e.refresh.IsScheduled(key) }

// Start disables triggers and invokes the command derived from location.
func (e *Engine) Start(ctx context.Context, location string) (invoke.Outcome, error) {
	seed, err := bootstrap.Resolve(location)
	if err != nil {
		return invoke.Outcome{}, err
	}
	if !e.enter() {
		return invoke.Outcome{}, ErrClosed
	}
	defer e.leave()

	e.logger.Info("bootstrapping page", "command", seed.Command, "args", len(seed.Args))
	e.gate.Disable()
	out, err := e.invoker.Invoke(ctx, seed.Command, seed.Args)
	e.record(ctx, out)
	return out, err
}

// Process runs the pipeline with origin as the triggering element.
func (e *Engine) Process(ctx context.Context, origin *html.Node) (invoke.Outcome, error) {
	if !e.enter() {
		return invoke.Outcome{}, ErrClosed
	}
	defer e.leave()

	if e.gate.Busy() {
		return invoke.Outcome{}, e.reject("")
	}

	res := collect.Collect(e.doc, origin)
	if res.Command == "" {
		return invoke.Outcome{}, ErrNotExecutable
	}

	a := res.Args
	if res.Pending() {
		uploaded, err := e.uploads.Resolve(ctx, res.Files)
		if err != nil {
			e.logger.Error("upload failed, command abandoned", "command", res.Command, "error", err)
			e.hub.Publish(events.UploadFailed, map[string]any{"command": res.Command, "error": err.Error()})
			return invoke.Outcome{}, fmt.Errorf("resolve uploads for %s: %w", res.Command, err)
		}
		e.hub.Publish(events.UploadResolved, map[string]any{"command": res.Command, "fields": len(uploaded)})
		a = res.WithUploads(uploaded)
	}

	// Uploads may have taken long enough for another trigger to win.
	if !e.gate.TryAdmit() {
		return invoke.Outcome{}, e.reject(res.Command)
	}

	out, err := e.invoker.Invoke(ctx, res.Command, a)
	e.record(ctx, out)
	return out, err
}

func (e *Engine) reject(command string) error {
	e.logger.Debug("trigger dropped while busy", "command", command)
	e.hub.Publish(events.GateRejected, map[string]any{"command": command})
	e.metrics.GateRejected()
	return ErrBusy
}

func (e *Engine) onRefresh(origin *html.Node) {
	if _, err := e.Process(context.Background(), origin); err != nil && !errors.Is(err, ErrClosed) {
		e.logger.Debug("refresh run ended", "error", err)
	}
}

// mirrorGate keeps the inactive marker on every trigger in step with the gate.
func (e *Engine) mirrorGate(busy bool) {
	e.doc.Write(func(root *html.Node) {
		for _, n := range dom.WithClass(root, ClassExecute) {
			if busy {
				dom.AddClass(n, ClassInactive)
			} else {
				dom.RemoveClass(n, ClassInactive)
			}
		}
	})
	e.hub.Publish(events.GateChanged, map[string]any{"busy": busy})
}

func (e *Engine) record(ctx context.Context, out invoke.Outcome) {
	if e.journal == nil || out.ID == "" {
		return
	}
	entry := journal.Entry{
		ID:          out.ID,
		Command:     out.Command,
		ArgBytes:    out.ArgBytes,
		Status:      journal.StatusOK,
		Applied:     len(out.Applied),
		Skipped:     len(out.Skipped),
		StartedAt:   out.Started,
		CompletedAt: out.Completed,
	}
	if out.Err != nil {
		entry.Status = journal.StatusFailed
		entry.Error = out.Err.Error()
	}
	if err := e.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("journal write failed", "invocation_id", out.ID, "error", err)
	}
}

func (e *Engine) enter() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	e.active.Add(1)
	return true
}

func (e *Engine) leave() {
	e.active.Add(-1)
	e.wg.Done()
}

// WaitIdle blocks until no debounced input is pending and no pipeline is
// running. Armed refresh timers do not count.
func (e *Engine) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if e.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) idle() bool {
	return !e.debouncer.Pending() && e.active.Load() == 0
}

// Close stops accepting triggers and waits for running pipelines. Timers
// that fire afterwards are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}
