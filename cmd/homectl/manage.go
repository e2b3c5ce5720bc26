package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/homectlx/homectl/internal/config"
	"github.com/homectlx/homectl/internal/devserver"
	"github.com/homectlx/homectl/internal/journal"
	"github.com/homectlx/homectl/internal/log"
)

func runDevServerStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	listen := fs.String("listen", "", "Listen address (overrides devserver.listen)")
	fixturesPath := fs.String("fixtures", "", "Fixture file (overrides devserver.fixtures)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.DevServer.Listen = *listen
	}
	if *fixturesPath != "" {
		cfg.DevServer.Fixtures = *fixturesPath
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")

	fixtures, err := devserver.LoadFixtures(cfg.DevServer.Fixtures)
	if err != nil {
		logger.Error("failed to load fixtures", "path", cfg.DevServer.Fixtures, "error", err)
		return 1
	}
	srv, err := devserver.New(devserver.Config{Listen: cfg.DevServer.Listen}, fixtures, log.Get())
	if err != nil {
		logger.Error("failed to build devserver", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("devserver running (press Ctrl+C to stop)", "listen", cfg.DevServer.Listen, "commands", len(fixtures.Commands))
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("devserver failed", "error", err)
		return 1
	}
	logger.Info("devserver stopped")
	return 0
}

func openJournal(configPath string) (*journal.Journal, *config.Config, error) {
	cfg, err := loadConfigOrDefaults(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.Journal.Enabled {
		return nil, nil, fmt.Errorf("journal is disabled (set journal.enabled: true)")
	}
	j, err := journal.Open(context.Background(), cfg.Journal.Path)
	if err != nil {
		return nil, nil, err
	}
	return j, cfg, nil
}

func runJournalList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", journal.DefaultLimit, "Maximum number of entries")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	j, _, err := openJournal(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}
	defer j.Close()

	entries, err := j.Recent(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}

	if *jsonOut {
		type row struct {
			ID         string    `json:"id"`
			Command    string    `json:"command"`
			Status     string    `json:"status"`
			Error      string    `json:"error,omitempty"`
			ArgBytes   int       `json:"arg_bytes"`
			Applied    int       `json:"applied"`
			Skipped    int       `json:"skipped"`
			StartedAt  time.Time `json:"started_at"`
			DurationMS int64     `json:"duration_ms"`
		}
		rows := make([]row, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, row{
				ID:         e.ID,
				Command:    e.Command,
				Status:     e.Status,
				Error:      e.Error,
				ArgBytes:   e.ArgBytes,
				Applied:    e.Applied,
				Skipped:    e.Skipped,
				StartedAt:  e.StartedAt,
				DurationMS: e.Duration().Milliseconds(),
			})
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No invocations recorded.")
		return 0
	}
	fmt.Printf("%-20s %-8s %-24s %-7s %-9s %s\n", "STARTED", "STATUS", "COMMAND", "FRAGS", "DURATION", "ID")
	for _, e := range entries {
		fmt.Printf("%-20s %-8s %-24s %-7s %-9s %s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Status,
			e.Command,
			fmt.Sprintf("%d/%d", e.Applied, e.Skipped),
			fmt.Sprintf("%dms", e.Duration().Milliseconds()),
			e.ID,
		)
		if e.Error != "" {
			fmt.Printf("  error: %s\n", e.Error)
		}
	}
	return 0
}

func runJournalPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	retention := fs.Duration("retention", 0, "Retention window (default: journal.retention)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	j, cfg, err := openJournal(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}
	defer j.Close()

	window := cfg.Journal.Retention
	if *retention > 0 {
		window = *retention
	}
	if window <= 0 {
		fmt.Fprintln(os.Stderr, "No retention window configured; nothing pruned.")
		return 1
	}

	n, err := j.Prune(context.Background(), window)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Journal error: %v\n", err)
		return 1
	}
	fmt.Printf("Pruned %d invocation(s) older than %s\n", n, window)
	return 0
}

type checkResult struct {
	Valid   bool     `json:"valid"`
	Config  string   `json:"config"`
	Files   []string `json:"files,omitempty"`
	BaseURL string   `json:"base_url,omitempty"`
	Journal bool     `json:"journal_enabled"`
	Error   string   `json:"error,omitempty"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	result := checkResult{Config: path}
	cfg, err := config.Load(path)
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
		result.Files = cfg.SourceFiles
		result.BaseURL = cfg.Server.BaseURL
		result.Journal = cfg.Journal.Enabled
	}

	if *jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else if result.Valid {
		fmt.Printf("Configuration OK: %s\n", path)
		for _, f := range result.Files {
			fmt.Printf("  - %s\n", f)
		}
		fmt.Printf("Command server: %s\n", result.BaseURL)
	} else {
		fmt.Printf("Configuration INVALID: %s\n%s\n", path, result.Error)
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}
	files, err := config.Sources(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config files: %v\n", err)
		return 1
	}

	reports, err := config.GenerateChecksums(files, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if isVerbose {
		for _, report := range reports {
			fmt.Printf("Processing directory: %s\n", filepath.Dir(report.ChecksumPath))
			names := make([]string, 0, len(report.Files))
			for name := range report.Files {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  HASH %s: %s\n", name, report.Files[name])
			}
			if report.Written {
				fmt.Printf("  WROTE %s: %s\n", config.ChecksumFile, report.ChecksumPath)
			} else {
				fmt.Printf("  DRY-RUN %s: %s (not written)\n", config.ChecksumFile, report.ChecksumPath)
			}
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %d directory/ies (no files written):\n", len(reports))
	} else {
		fmt.Printf("Successfully locked configuration in %d directory/ies:\n", len(reports))
	}
	for _, report := range reports {
		fmt.Printf("  - %s\n", filepath.Dir(report.ChecksumPath))
	}
	return 0
}
