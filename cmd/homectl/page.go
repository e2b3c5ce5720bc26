package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/homectlx/homectl/internal/config"
	"github.com/homectlx/homectl/internal/dom"
	"github.com/homectlx/homectl/internal/engine"
	"github.com/homectlx/homectl/internal/events"
	"github.com/homectlx/homectl/internal/invoke"
	"github.com/homectlx/homectl/internal/journal"
	"github.com/homectlx/homectl/internal/log"
	"github.com/homectlx/homectl/internal/metrics"
	"github.com/homectlx/homectl/internal/tui/watch"
)

// Interaction kinds accepted by "page run".
const (
	actClick   = "click"
	actSet     = "set"
	actCheck   = "check"
	actUncheck = "uncheck"
	actFile    = "file"
)

type interaction struct {
	kind  string
	id    string
	value string
}

// interactionFlag appends to a shared list so the command line order of
// different flags is preserved.
type interactionFlag struct {
	kind string
	list *[]interaction
}

func (f interactionFlag) String() string { return "" }

func (f interactionFlag) Set(v string) error {
	it := interaction{kind: f.kind, id: v}
	if f.kind == actSet || f.kind == actFile {
		id, value, ok := strings.Cut(v, "=")
		if !ok || id == "" {
			return fmt.Errorf("expected ID=VALUE, got %q", v)
		}
		it.id, it.value = id, value
	}
	if it.id == "" {
		return fmt.Errorf("element id is required")
	}
	*f.list = append(*f.list, it)
	return nil
}

// session holds one loaded page and the engine driving it.
type session struct {
	cfg     *config.Config
	engine  *engine.Engine
	hub     *events.Hub
	metrics *metrics.Metrics
	journal *journal.Journal
	logger  *slog.Logger
	pageURL string
}

// resolvePageURL returns the absolute page URL and the command server base.
// A relative page path is taken against server.base_url.
func resolvePageURL(cfg *config.Config, page string) (string, string, error) {
	u, err := url.Parse(page)
	if err != nil {
		return "", "", fmt.Errorf("invalid page url %q: %w", page, err)
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", "", fmt.Errorf("page url must be http(s): %q", page)
		}
		return page, u.Scheme + "://" + u.Host, nil
	}
	base := strings.TrimRight(cfg.Server.BaseURL, "/")
	return base + "/" + strings.TrimLeft(page, "/"), base, nil
}

func fetchPage(ctx context.Context, client *http.Client, pageURL string) (*dom.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch page: %s returned %d", pageURL, resp.StatusCode)
	}
	return dom.Parse(resp.Body)
}

func newSession(ctx context.Context, cfg *config.Config, page string, client *http.Client) (*session, error) {
	pageURL, base, err := resolvePageURL(cfg, page)
	if err != nil {
		return nil, err
	}
	logger := log.WithComponent("page")

	doc, err := fetchPage(ctx, client, pageURL)
	if err != nil {
		return nil, err
	}

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	rt := &session{
		cfg:     cfg,
		hub:     events.NewHub(256),
		metrics: m,
		logger:  logger,
		pageURL: pageURL,
	}

	var recorder engine.Recorder
	if cfg.Journal.Enabled {
		j, err := journal.Open(ctx, cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		if cfg.Journal.Retention > 0 {
			if n, err := j.Prune(ctx, cfg.Journal.Retention); err != nil {
				logger.Warn("journal prune failed", "error", err)
			} else if n > 0 {
				logger.Info("journal pruned", "removed", n)
			}
		}
		rt.journal = j
		recorder = j
	}

	rt.engine = engine.New(doc, engine.Options{
		Caller:         invoke.NewHTTPCaller(base, cfg.Server.RequestTimeout).WithClient(client),
		DebounceWindow: cfg.Dispatch.DebounceWindow,
		FocusDelay:     cfg.Dispatch.FocusDelay,
		Hub:            rt.hub,
		Metrics:        m,
		Journal:        recorder,
		Logger:         log.Get(),
	})
	return rt, nil
}

func (rt *session) Close() {
	rt.engine.Close()
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn("journal close failed", "error", err)
		}
	}
}

// apply performs one interaction and waits for whatever it triggered.
func (rt *session) apply(ctx context.Context, it interaction) (invoke.Outcome, error) {
	var (
		out invoke.Outcome
		err error
	)
	switch it.kind {
	case actClick:
		out, err = rt.engine.Click(ctx, it.id)
	case actSet:
		err = rt.engine.Input(it.id, it.value)
	case actCheck:
		err = rt.engine.Check(it.id, true)
	case actUncheck:
		err = rt.engine.Check(it.id, false)
	case actFile:
		err = rt.engine.SelectFiles(it.id, dom.File{Name: filepath.Base(it.value), Path: it.value})
	default:
		err = fmt.Errorf("unknown interaction %q", it.kind)
	}
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", it.kind, it.id, err)
	}
	return out, rt.engine.WaitIdle(ctx)
}

type outcomeSummary struct {
	Trigger    string   `json:"trigger"`
	ID         string   `json:"id,omitempty"`
	Command    string   `json:"command,omitempty"`
	Applied    []string `json:"applied"`
	Skipped    []string `json:"skipped"`
	Changed    []string `json:"changed"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

func summarize(trigger string, out invoke.Outcome, err error) outcomeSummary {
	s := outcomeSummary{
		Trigger: trigger,
		ID:      out.ID,
		Command: out.Command,
		Applied: nonNil(out.Applied),
		Skipped: nonNil(out.Skipped),
		Changed: nonNil(out.Changed),
	}
	if !out.Started.IsZero() {
		s.DurationMS = out.Duration().Milliseconds()
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func runPageRun(args []string) int {
	var (
		configPath string
		wait       time.Duration
		jsonOut    bool
		steps      []interaction
	)
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.DurationVar(&wait, "wait", 0, "Keep the page alive this long after the last interaction")
	fs.BoolVar(&jsonOut, "json", false, "Print outcomes as JSON instead of the document")
	fs.Var(interactionFlag{kind: actClick, list: &steps}, actClick, "Click element ID")
	fs.Var(interactionFlag{kind: actSet, list: &steps}, actSet, "Set input ID=VALUE")
	fs.Var(interactionFlag{kind: actCheck, list: &steps}, actCheck, "Check checkbox ID")
	fs.Var(interactionFlag{kind: actUncheck, list: &steps}, actUncheck, "Uncheck checkbox ID")
	fs.Var(interactionFlag{kind: actFile, list: &steps}, actFile, "Select file ID=PATH")

	page, rest := splitPositional(args)
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if page == "" {
		fmt.Fprintln(os.Stderr, "Usage: homectl page run <url> [flags]")
		return 1
	}

	cfg, err := loadConfigOrDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newSession(ctx, cfg, page, &http.Client{Timeout: cfg.Server.RequestTimeout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load page: %v\n", err)
		return 1
	}
	defer rt.Close()

	return rt.run(ctx, steps, wait, jsonOut, os.Stdout)
}

func (rt *session) run(ctx context.Context, steps []interaction, wait time.Duration, jsonOut bool, w io.Writer) int {
	code := 0
	var outcomes []outcomeSummary

	out, err := rt.engine.Start(ctx, rt.pageURL)
	outcomes = append(outcomes, summarize("start", out, err))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Bootstrap failed: %v\n", err)
		code = 1
	}

	for _, step := range steps {
		out, err := rt.apply(ctx, step)
		if step.kind == actClick || err != nil {
			outcomes = append(outcomes, summarize(step.kind+" "+step.id, out, err))
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Interaction failed: %v\n", err)
			code = 1
		}
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	if err := rt.engine.WaitIdle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		code = 1
	}

	if jsonOut {
		data, err := json.MarshalIndent(outcomes, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Fprintln(w, string(data))
		return code
	}
	if err := rt.engine.Document().Render(w); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render document: %v\n", err)
		return 1
	}
	fmt.Fprintln(w)
	return code
}

func runPageWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")

	page, rest := splitPositional(args)
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if page == "" {
		fmt.Fprintln(os.Stderr, "Usage: homectl page watch <url> [--config PATH]")
		return 1
	}

	cfg, err := loadConfigOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// The TUI owns the terminal.
	log.SetupWriter(io.Discard, cfg.Service.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newSession(ctx, cfg, page, &http.Client{Timeout: cfg.Server.RequestTimeout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load page: %v\n", err)
		return 1
	}
	defer rt.Close()

	if cfg.Metrics.Listen != "" {
		srv := metrics.NewServer(cfg.Metrics.Listen, rt.metrics, log.Get())
		go func() {
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				rt.logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	m := watch.New(rt.pageURL, rt.hub)
	defer m.Close()

	go func() {
		if _, err := rt.engine.Start(ctx, rt.pageURL); err != nil {
			rt.logger.Error("bootstrap failed", "error", err)
		}
	}()

	p := tea.NewProgram(m)
	_, err = p.Run()
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// splitPositional pulls the first non-flag argument out so flags may
// follow it. Values of flags that take one are left in place.
func splitPositional(args []string) (string, []string) {
	takesValue := map[string]bool{
		"config": true, "wait": true, "click": true, "set": true,
		"check": true, "uncheck": true, "file": true,
		"listen": true, "fixtures": true, "limit": true, "retention": true,
	}
	var positional string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			rest = append(rest, arg)
			name := strings.TrimLeft(arg, "-")
			if !strings.Contains(name, "=") && takesValue[name] && i+1 < len(args) {
				i++
				rest = append(rest, args[i])
			}
			continue
		}
		if positional == "" {
			positional = arg
			continue
		}
		rest = append(rest, arg)
	}
	return positional, rest
}
