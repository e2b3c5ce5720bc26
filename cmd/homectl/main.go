package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/homectlx/homectl/internal/config"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "page":
		return runPageNoun(args)
	case "devserver":
		return runDevServerNoun(args)
	case "journal":
		return runJournalNoun(args)
	case "config":
		return runConfigNoun(args)

	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: homectl version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("homectl %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`homectl - headless driver for home-automation control pages

Usage:
  homectl <noun> <action> [flags]

Page Commands:
  page run <url>      Load a control page, apply interactions, print the result
  page watch <url>    Load a control page and follow its activity in a TUI

Dev Server Commands:
  devserver start     Serve fixture pages and command fragments locally

Journal Commands:
  journal list        Show recent invocations
  journal prune       Delete invocations older than the retention window

Config Commands:
  config check        Validate syntax and integrity
  config lock         Authorize current state (update integrity hashes)

General:
  version             Show version information
  help                Show this help message

Use 'homectl <noun> help' for action-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runPageNoun(args []string) int {
	if len(args) < 1 {
		printPageNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printPageNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "run":
		if hasHelpFlag(actionArgs) {
			printPageRunHelp()
			return 0
		}
		return runPageRun(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printPageWatchHelp()
			return 0
		}
		return runPageWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown page action: %s\n", action)
		return 1
	}
}

func runDevServerNoun(args []string) int {
	if len(args) < 1 {
		printDevServerNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printDevServerNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printDevServerStartHelp()
			return 0
		}
		return runDevServerStart(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown devserver action: %s\n", action)
		return 1
	}
}

func runJournalNoun(args []string) int {
	if len(args) < 1 {
		printJournalNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJournalNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printJournalListHelp()
			return 0
		}
		return runJournalList(actionArgs)
	case "prune":
		if hasHelpFlag(actionArgs) {
			printJournalPruneHelp()
			return 0
		}
		return runJournalPrune(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown journal action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action, actionArgs := args[0], args[1:]
	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printPageNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: homectl page <action>")
	fmt.Fprintln(w, "Actions: run, watch")
}

func printDevServerNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: homectl devserver <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printJournalNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: homectl journal <action>")
	fmt.Fprintln(w, "Actions: list, prune")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: homectl config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printPageRunHelp() {
	fmt.Println("Usage: homectl page run <url> [--config PATH] [--set ID=VALUE] [--check ID] [--uncheck ID]")
	fmt.Println("                        [--file ID=PATH] [--click ID] [--wait DURATION] [--json]")
	fmt.Println()
	fmt.Println("Loads the page, runs its bootstrap command, then applies interactions in the")
	fmt.Println("order given. The final document (or, with --json, every outcome) goes to stdout.")
}

func printPageWatchHelp() {
	fmt.Println("Usage: homectl page watch <url> [--config PATH]")
	fmt.Println()
	fmt.Println("Loads the page and keeps it alive, showing gate state, commands and events.")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Navigate commands")
	fmt.Println("  PgUp/PgDn        Scroll the event stream")
}

func printDevServerStartHelp() {
	fmt.Println("Usage: homectl devserver start [--config PATH] [--listen ADDR] [--fixtures PATH]")
	fmt.Println("Serve fixture-backed control pages and command fragments in the foreground.")
}

func printJournalListHelp() {
	fmt.Println("Usage: homectl journal list [--config PATH] [--limit N] [--json]")
	fmt.Println("Show the most recent invocations, newest first.")
}

func printJournalPruneHelp() {
	fmt.Println("Usage: homectl journal prune [--config PATH] [--retention DURATION]")
	fmt.Println("Delete invocations older than the retention window.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: homectl config check [--config PATH] [--json]")
	fmt.Println("Validate configuration syntax, values and integrity.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: homectl config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

// --- SHARED HELPERS ---

var errNoConfig = errors.New("no config found")

// resolveConfigPath returns the explicit path or the discovered one.
func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	discovered, err := config.DiscoverConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNoConfig, err)
	}
	return discovered, nil
}

// loadConfigOrDefaults loads the config when one is given or discovered
// and falls back to defaults otherwise.
func loadConfigOrDefaults(configPath string) (*config.Config, error) {
	path, err := resolveConfigPath(configPath)
	if errors.Is(err, errNoConfig) {
		return config.Defaults(), nil
	}
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}
