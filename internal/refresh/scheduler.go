// Package refresh re-runs the command pipeline for fragments that carry
// auto-update directives.
package refresh

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/homectlx/homectl/internal/dom"
	"github.com/homectlx/homectl/internal/events"
	"github.com/homectlx/homectl/internal/gate"
	"github.com/homectlx/homectl/internal/metrics"
)

// AttrDelay is the data attribute holding the delay in milliseconds.
const AttrDelay = "autoupdatedelay"

// TriggerFunc re-runs the pipeline with origin as the triggering element.
type TriggerFunc func(origin *html.Node)

type Options struct {
	AfterFunc gate.AfterFunc
	Logger    *slog.Logger
	Hub       *events.Hub
	Metrics   *metrics.Metrics
}

// Scheduler tracks which fragment keys have armed refresh timers. A key
// stays marked from Arm until the first of its timers fires.
type Scheduler struct {
	doc       *dom.Document
	trigger   TriggerFunc
	afterFunc gate.AfterFunc
	logger    *slog.Logger
	hub       *events.Hub
	metrics   *metrics.Metrics

	mu        sync.Mutex
	scheduled map[string]bool
	timers    int
}

func New(doc *dom.Document, trigger TriggerFunc, opts Options) *Scheduler {
	s := &Scheduler{
		doc:       doc,
		trigger:   trigger,
		afterFunc: opts.AfterFunc,
		logger:    opts.Logger,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		scheduled: make(map[string]bool),
	}
	if s.afterFunc == nil {
		s.afterFunc = func(d time.Duration, fn func()) gate.Timer { return time.AfterFunc(d, fn) }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "refresh")
	return s
}

type directive struct {
	node  *html.Node
	delay time.Duration
}

// Arm starts one timer per auto-update directive found below subtree, unless
// key is already scheduled. A subtree without directives leaves the key
// unmarked. It returns the number of timers started.
func (s *Scheduler) Arm(key string, subtree *html.Node) int {
	if subtree == nil {
		return 0
	}

	var found []directive
	s.doc.Read(func(*html.Node) {
		for _, n := range dom.WithAttr(subtree, "data-"+AttrDelay) {
			if n == subtree {
				continue
			}
			raw, _ := dom.Data(n, AttrDelay)
			found = append(found, directive{node: n, delay: parseDelay(raw)})
		}
	})
	if len(found) == 0 {
		return 0
	}

	s.mu.Lock()
	if s.scheduled[key] {
		s.mu.Unlock()
		s.logger.Debug("refresh already scheduled", "key", key)
		return 0
	}
	s.scheduled[key] = true
	s.timers += len(found)
	s.mu.Unlock()

	for _, d := range found {
		s.afterFunc(d.delay, func() { s.fire(key, d.node) })
	}

	s.logger.Debug("refresh armed", "key", key, "timers", len(found))
	s.hub.Publish(events.RefreshArmed, map[string]any{"key": key, "timers": len(found)})
	s.metrics.RefreshArmed(len(found))
	return len(found)
}

func (s *Scheduler) fire(key string, origin *html.Node) {
	s.mu.Lock()
	delete(s.scheduled, key)
	s.timers--
	s.mu.Unlock()

	s.hub.Publish(events.RefreshFired, map[string]any{"key": key})
	if s.trigger != nil {
		s.trigger(origin)
	}
}

// IsScheduled reports whether key has armed timers that have not fired yet.
func (s *Scheduler) IsScheduled(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled[key]
}

// Pending returns the number of started timers that have not fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers
}

// parseDelay reads a millisecond delay. Values that are not a number fire
// immediately.
func parseDelay(raw string) time.Duration {
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}
