// Package invoke sends commands to the server and swaps the returned
// fragments into the document.
package invoke

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/net/html"

	"github.com/homectlx/homectl/internal/args"
	"github.com/homectlx/homectl/internal/dom"
	"github.com/homectlx/homectl/internal/events"
	"github.com/homectlx/homectl/internal/gate"
	"github.com/homectlx/homectl/internal/metrics"
)

// Armer starts auto-refresh for a freshly swapped fragment.
type Armer interface {
	Arm(key string, subtree *html.Node) int
}

// Outcome summarizes one invocation.
type Outcome struct {
	ID        string
	Command   string
	ArgBytes  int
	Applied   []string
	Skipped   []string
	Changed   []string
	Started   time.Time
	Completed time.Time
	Err       error
}

func (o Outcome) Duration() time.Duration {
	return o.Completed.Sub(o.Started)
}

type Options struct {
	Refresh Armer
	Hub     *events.Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Invoker struct {
	doc     *dom.Document
	gate    *gate.Gate
	caller  Caller
	refresh Armer
	hub     *events.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(doc *dom.Document, g *gate.Gate, caller Caller, opts Options) *Invoker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		doc:     doc,
		gate:    g,
		caller:  caller,
		refresh: opts.Refresh,
		hub:     opts.Hub,
		metrics: opts.Metrics,
		logger:  logger.With("component", "invoke"),
	}
}

// SetRefresh attaches the auto-refresh scheduler after construction, since
// the scheduler's trigger usually loops back into the pipeline owning this
// invoker.
func (i *Invoker) SetRefresh(r Armer) {
	i.refresh = r
}

// Invoke performs the round-trip for command and applies the returned
// fragments in order. The caller must hold the gate; it is released when
// Invoke returns, on success and on failure alike.
func (i *Invoker) Invoke(ctx context.Context, command string, a args.Map) (Outcome, error) {
	defer i.gate.Release()

	out := Outcome{
		ID:      uuid.NewString(),
		Command: command,
		Started: time.Now().UTC(),
	}
	if body, err := a.Encode(); err == nil {
		out.ArgBytes = len(body)
	}
	logger := i.logger.With("command", command, "invocation_id", out.ID)

	logger.Debug("invoking command", "args", len(a))
	i.hub.Publish(events.CommandStarted, map[string]any{
		"invocation_id": out.ID,
		"command":       command,
	})

	frags, err := i.caller.Call(ctx, command, a)
	if err != nil {
		out.Completed = time.Now().UTC()
		out.Err = err
		i.fail(logger, out)
		return out, err
	}

	for _, f := range frags {
		i.apply(logger, &out, f.ID, f.Markup)
	}

	out.Completed = time.Now().UTC()
	logger.Info("command completed",
		"applied", len(out.Applied),
		"skipped", len(out.Skipped),
		"duration_ms", out.Duration().Milliseconds(),
	)
	i.hub.Publish(events.CommandSucceeded, map[string]any{
		"invocation_id": out.ID,
		"command":       command,
		"applied":       out.Applied,
		"skipped":       out.Skipped,
		"duration_ms":   out.Duration().Milliseconds(),
	})
	i.metrics.ObserveCommand(command, metrics.StatusOK, out.Duration())
	return out, nil
}

func (i *Invoker) fail(logger *slog.Logger, out Outcome) {
	attrs := []any{"error", out.Err, "duration_ms", out.Duration().Milliseconds()}
	var ce *CallError
	if errors.As(out.Err, &ce) && ce.Status != 0 {
		attrs = append(attrs, "status", ce.Status)
	}
	logger.Error("command failed", attrs...)
	i.hub.Publish(events.CommandFailed, map[string]any{
		"invocation_id": out.ID,
		"command":       out.Command,
		"error":         out.Err.Error(),
	})
	i.metrics.ObserveCommand(out.Command, metrics.StatusFailed, out.Duration())
}

func (i *Invoker) apply(logger *slog.Logger, out *Outcome, id, markup string) {
	before, ok := i.doc.OuterHTML(id)
	if !ok {
		i.skip(logger, out, id, "no element")
		return
	}

	el, found, err := i.doc.ReplaceOuter(id, markup)
	if !found {
		i.skip(logger, out, id, "no element")
		return
	}
	if err != nil {
		logger.Warn("fragment not applied", "key", id, "error", err)
		i.skip(logger, out, id, err.Error())
		return
	}

	after, _ := i.doc.OuterHTML(id)
	changed := digest(before) != digest(after)
	out.Applied = append(out.Applied, id)
	if changed {
		out.Changed = append(out.Changed, id)
	}
	i.hub.Publish(events.FragmentApplied, map[string]any{
		"invocation_id": out.ID,
		"key":           id,
		"changed":       changed,
	})
	i.metrics.FragmentApplied()

	if i.refresh != nil && el != nil {
		i.refresh.Arm(id, el)
	}
}

func (i *Invoker) skip(logger *slog.Logger, out *Outcome, id, reason string) {
	logger.Debug("fragment skipped", "key", id, "reason", reason)
	out.Skipped = append(out.Skipped, id)
	i.hub.Publish(events.FragmentSkipped, map[string]any{
		"invocation_id": out.ID,
		"key":           id,
		"reason":        reason,
	})
}

func digest(markup string) string {
	sum := blake3.Sum256([]byte(markup))
	return hex.EncodeToString(sum[:8])
}
