package main

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/homectlx/homectl/internal/config"
	"github.com/homectlx/homectl/internal/devserver"
	"github.com/homectlx/homectl/internal/log"
)

func TestMain(m *testing.M) {
	log.SetupWriter(io.Discard, "ERROR")
	os.Exit(m.Run())
}

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	stdoutCh := make(chan []byte)
	stderrCh := make(chan []byte)
	go func() { b, _ := io.ReadAll(stdoutR); stdoutCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); stderrCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes := <-stdoutCh
	stderrBytes := <-stderrCh
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion, origCommit, origBuildDate := version, gitCommit, buildDate
	version, gitCommit, buildDate = v, commit, built
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origBuildDate
	})
}

const pageFixtures = `
pages:
  lights: |
    <html><body><div id="_body">loading</div><div id="_error"></div></body></html>
commands:
  lights/ctl:
    - id: _body
      template: |
        <div id="_body"><form>
        <select id="zone" name="zone"><option>hall</option><option {{if eq (index .Args "zone") "kitchen"}}selected{{end}}>kitchen</option></select>
        <input type="checkbox" id="l1" name="lamps" value="l1" checked><input type="checkbox" id="l2" name="lamps" value="l2">
        <button id="apply" class="execute" data-func="lights/set">apply</button>
        </form><div id="status">idle</div></div>
  lights/set:
    - id: status
      template: '<div id="status">{{index .Args "zone"}}:{{range index .Args "lamps"}}{{.}}{{end}} #{{.Count}}</div>'
`

func startDevServer(t *testing.T) *httptest.Server {
	t.Helper()
	fixtures, err := devserver.ParseFixtures([]byte(pageFixtures))
	if err != nil {
		t.Fatalf("ParseFixtures: %v", err)
	}
	srv, err := devserver.New(devserver.Config{}, fixtures, log.Get())
	if err != nil {
		t.Fatalf("devserver.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := "service:\n  log_level: error\n" +
		"dispatch:\n  debounce_window: 10ms\n" +
		"journal:\n  enabled: true\n  path: " + filepath.Join(dir, "journal.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef", "2026-03-04T05:06:07Z")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version", "--json"})
	})
	if code != 0 {
		t.Fatalf("version code = %d, stderr: %s", code, stderr)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, stdout)
	}
	if info.Version != "1.2.3" || info.Commit != "0123456789ab" || info.BuildTime != "2026-03-04T05:06:07Z" {
		t.Fatalf("unexpected version info: %+v", info)
	}
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"bogus"})
	})
	if code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: bogus") {
		t.Fatalf("stderr = %q", stderr)
	}
	if !strings.Contains(stdout, "homectl <noun> <action>") {
		t.Fatalf("usage not printed: %q", stdout)
	}
}

func TestNounHelp(t *testing.T) {
	for _, noun := range []string{"page", "devserver", "journal", "config"} {
		code, stdout, _ := captureOutputWithExitCode(t, func() int {
			return runCLI([]string{noun, "help"})
		})
		if code != 0 {
			t.Fatalf("%s help code = %d", noun, code)
		}
		if !strings.Contains(stdout, "Usage: homectl "+noun) {
			t.Fatalf("%s help output = %q", noun, stdout)
		}
	}
}

func TestSplitPositional(t *testing.T) {
	page, rest := splitPositional([]string{"--config", "c.yaml", "http://h/lights/ctl", "--click", "apply", "--json"})
	if page != "http://h/lights/ctl" {
		t.Fatalf("page = %q", page)
	}
	want := []string{"--config", "c.yaml", "--click", "apply", "--json"}
	if strings.Join(rest, " ") != strings.Join(want, " ") {
		t.Fatalf("rest = %v, want %v", rest, want)
	}
}

func TestInteractionFlagsKeepOrder(t *testing.T) {
	var steps []interaction
	for _, f := range []struct{ kind, value string }{
		{actSet, "zone=hall"},
		{actClick, "apply"},
		{actUncheck, "l1"},
		{actFile, "photo=/tmp/a.png"},
	} {
		if err := (interactionFlag{kind: f.kind, list: &steps}).Set(f.value); err != nil {
			t.Fatalf("Set(%q): %v", f.value, err)
		}
	}

	want := []interaction{
		{kind: actSet, id: "zone", value: "hall"},
		{kind: actClick, id: "apply"},
		{kind: actUncheck, id: "l1"},
		{kind: actFile, id: "photo", value: "/tmp/a.png"},
	}
	if len(steps) != len(want) {
		t.Fatalf("steps = %+v", steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("step %d = %+v, want %+v", i, steps[i], want[i])
		}
	}

	if err := (interactionFlag{kind: actSet, list: &steps}).Set("novalue"); err == nil {
		t.Fatal("expected error for --set without '='")
	}
}

func TestResolvePageURL(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.BaseURL = "http://10.0.0.5:5000/"

	page, base, err := resolvePageURL(cfg, "/heating/ctl?room=den")
	if err != nil {
		t.Fatal(err)
	}
	if page != "http://10.0.0.5:5000/heating/ctl?room=den" || base != "http://10.0.0.5:5000" {
		t.Fatalf("relative page resolved to %q (base %q)", page, base)
	}

	page, base, err = resolvePageURL(cfg, "https://panel.local:8443/lights/ctl")
	if err != nil {
		t.Fatal(err)
	}
	if page != "https://panel.local:8443/lights/ctl" || base != "https://panel.local:8443" {
		t.Fatalf("absolute page resolved to %q (base %q)", page, base)
	}

	if _, _, err := resolvePageURL(cfg, "ftp://panel/lights/ctl"); err == nil {
		t.Fatal("expected error for non-http page url")
	}
}

func TestPageRunJSONAndJournal(t *testing.T) {
	ts := startDevServer(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"page", "run", ts.URL + "/lights/ctl?zone=kitchen", "--config", cfgPath, "--click", "apply", "--json"})
	})
	if code != 0 {
		t.Fatalf("page run code = %d, stderr: %s", code, stderr)
	}

	var outcomes []outcomeSummary
	if err := json.Unmarshal([]byte(stdout), &outcomes); err != nil {
		t.Fatalf("page run output is not JSON: %v\n%s", err, stdout)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if outcomes[0].Trigger != "start" || outcomes[0].Command != "lights/ctl" {
		t.Fatalf("bootstrap outcome = %+v", outcomes[0])
	}
	if outcomes[1].Command != "lights/set" || strings.Join(outcomes[1].Applied, ",") != "status,_error" {
		t.Fatalf("click outcome = %+v", outcomes[1])
	}

	code, stdout, stderr = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"journal", "list", "--config", cfgPath})
	})
	if code != 0 {
		t.Fatalf("journal list code = %d, stderr: %s", code, stderr)
	}
	for _, want := range []string{"lights/ctl", "lights/set", "2/0"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("journal list missing %q:\n%s", want, stdout)
		}
	}
}

func TestPageRunRendersDocument(t *testing.T) {
	ts := startDevServer(t)
	cfgPath := writeConfig(t, t.TempDir())

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"page", "run", ts.URL + "/lights/ctl?zone=kitchen", "--config", cfgPath,
			"--set", "zone=hall", "--check", "l2", "--click", "apply"})
	})
	if code != 0 {
		t.Fatalf("page run code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `<div id="status">hall:l1l2 #`) {
		t.Fatalf("document missing updated status:\n%s", stdout)
	}
}

func TestPageRunReportsFailedInteraction(t *testing.T) {
	ts := startDevServer(t)
	cfgPath := writeConfig(t, t.TempDir())

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"page", "run", ts.URL + "/lights/ctl?zone=hall", "--config", cfgPath, "--click", "nope"})
	})
	if code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "click nope") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestConfigLockThenCheck(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "lock", "--config", cfgPath, "-v"})
	})
	if code != 0 {
		t.Fatalf("lock code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "HASH config.yaml:") || !strings.Contains(stdout, "WROTE .checksums:") {
		t.Fatalf("lock output = %s", stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, config.ChecksumFile)); err != nil {
		t.Fatalf("checksums not written: %v", err)
	}

	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", cfgPath})
	})
	if code != 0 || !strings.Contains(stdout, "Configuration OK") {
		t.Fatalf("check code = %d, output: %s", code, stdout)
	}

	if err := os.WriteFile(cfgPath, []byte("service:\n  log_level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", cfgPath, "--json"})
	})
	if code != 1 {
		t.Fatalf("check after edit code = %d, want 1", code)
	}
	var res checkResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("check output is not JSON: %v\n%s", err, stdout)
	}
	if res.Valid || !strings.Contains(res.Error, "config lock") {
		t.Fatalf("check result = %+v", res)
	}
}
