// Package devserver serves control pages and command fragments from YAML
// fixtures, for local development against the engine.
package devserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/homectlx/homectl/internal/args"
	"github.com/homectlx/homectl/internal/protocol"
)

// DefaultFunc is the action used when a request names none.
const DefaultFunc = "ctl"

// maxBodyBytes bounds request bodies; uploads arrive inline as data URLs.
const maxBodyBytes = 32 << 20

type Config struct {
	Listen string
}

// View is the data passed to fragment templates.
type View struct {
	VM    string
	Func  string
	Args  map[string]any
	Count int64
}

type Server struct {
	config    Config
	templates *templates
	logger    *slog.Logger
	server    *http.Server

	mu     sync.Mutex
	counts map[string]int64
}

func New(config Config, fixtures *Fixtures, logger *slog.Logger) (*Server, error) {
	if fixtures == nil {
		fixtures = &Fixtures{}
	}
	t, err := compile(fixtures)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		templates: t,
		logger:    logger.With("component", "devserver"),
		counts:    make(map[string]int64),
	}, nil
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("devserver starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("devserver shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/start/ctl", http.StatusFound)
	})
	r.Get("/{vm}/ctl", s.handlePage)
	r.Post("/{vm}/"+protocol.RunSuffix, s.handleRun)
	r.Post("/{vm}/{func}/"+protocol.RunSuffix, s.handleRun)

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	vm := chi.URLParam(r, "vm")
	t, ok := s.templates.pages[vm]
	if !ok {
		t = s.templates.page
	}
	page, err := render(t, View{VM: vm, Func: DefaultFunc})
	if err != nil {
		s.logger.Error("render page failed", "vm", vm, "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// handleRun answers 200 with an _error fragment for every failure, so the
// page can display it in place.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	vm := chi.URLParam(r, "vm")
	fn := chi.URLParam(r, "func")
	if fn == "" || fn == "undefined" {
		fn = DefaultFunc
	}
	command := vm + "/" + fn

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	frags, err := s.run(r, vm, fn)
	if err != nil {
		s.logger.Warn("command failed", "command", command, "error", err)
		msg, rerr := render(s.templates.err, err.Error())
		if rerr != nil {
			msg = err.Error()
		}
		frags = protocol.Fragments{{ID: ErrorKey, Markup: msg}}
	}

	w.Header().Set("Content-Type", protocol.ContentType)
	if err := protocol.EncodeFragments(w, frags); err != nil {
		s.logger.Error("encode fragments failed", "command", command, "error", err)
	}
}

func (s *Server) run(r *http.Request, vm, fn string) (protocol.Fragments, error) {
	command := vm + "/" + fn
	fixtures, ok := s.templates.commands[command]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", command)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	a := args.Map{}
	if len(bytes.TrimSpace(body)) > 0 {
		if a, err = args.Decode(body); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	s.mu.Lock()
	s.counts[command]++
	count := s.counts[command]
	s.mu.Unlock()

	view := View{VM: vm, Func: fn, Args: a.Strings(), Count: count}
	out := make(protocol.Fragments, 0, len(fixtures)+1)
	hasError := false
	for _, ft := range fixtures {
		markup, err := render(ft.tmpl, view)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", ft.id, err)
		}
		out = append(out, protocol.Fragment{ID: ft.id, Markup: markup})
		hasError = hasError || ft.id == ErrorKey
	}
	// Clear a previous error banner.
	if !hasError {
		markup, err := render(s.templates.err, "")
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", ErrorKey, err)
		}
		out = append(out, protocol.Fragment{ID: ErrorKey, Markup: markup})
	}
	return out, nil
}
