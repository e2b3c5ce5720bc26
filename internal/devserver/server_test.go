package devserver

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homectlx/homectl/internal/protocol"
)

const fixtureYAML = `
pages:
  lights: |
    <html><body><div id="panel-1">loading</div><div id="_error"></div></body></html>
error: '<p id="_error">{{.}}</p>'
commands:
  lights/ctl:
    - id: panel-1
      template: '<div id="panel-1">zone={{with index .Args "zone"}}{{.}}{{end}} n={{.Count}}</div>'
  lights/set:
    - id: status
      template: '<span id="status">{{range index .Args "lamps"}}{{.}};{{end}}</span>'
    - id: panel-1
      template: '<div id="panel-1">{{.VM}}/{{.Func}}</div>'
  lights/fail:
    - id: _error
      template: '<p id="_error">custom</p>'
`

func newTestServer(t *testing.T) (*Server, *bytes.Buffer) {
	t.Helper()
	f, err := ParseFixtures([]byte(fixtureYAML))
	require.NoError(t, err)
	var buf bytes.Buffer
	s, err := New(Config{}, f, slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, err)
	return s, &buf
}

func post(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, protocol.Fragments) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	frags, err := protocol.DecodeFragments(rec.Body)
	require.NoError(t, err)
	return rec, frags
}

func TestRunRendersFixturesInOrder(t *testing.T) {
	s, buf := newTestServer(t)
	h := s.Handler()

	rec, frags := post(t, h, "/lights/set/run", `{"lamps":["l1","l3"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, protocol.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"status", "panel-1", ErrorKey}, frags.IDs())

	status, _ := frags.Get("status")
	assert.Equal(t, `<span id="status">l1;l3;</span>`, status)
	panel, _ := frags.Get("panel-1")
	assert.Equal(t, `<div id="panel-1">lights/set</div>`, panel)
	clear, _ := frags.Get(ErrorKey)
	assert.Equal(t, `<p id="_error"></p>`, clear)

	assert.Contains(t, buf.String(), `"msg":"http request"`)
}

func TestRunDefaultsToCtlAndCounts(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	for _, path := range []string{"/lights/run", "/lights/undefined/run"} {
		_, frags := post(t, h, path+"?ignored=1", `{"zone":"kitchen"}`)
		require.NotEmpty(t, frags)
		assert.Equal(t, "panel-1", frags[0].ID)
	}
	_, frags := post(t, h, "/lights/ctl/run", "")
	panel, _ := frags.Get("panel-1")
	assert.Equal(t, `<div id="panel-1">zone= n=3</div>`, panel)
}

func TestRunKeepsExplicitErrorFragment(t *testing.T) {
	s, _ := newTestServer(t)
	_, frags := post(t, s.Handler(), "/lights/fail/run", "{}")
	assert.Equal(t, []string{ErrorKey}, frags.IDs())
	msg, _ := frags.Get(ErrorKey)
	assert.Equal(t, `<p id="_error">custom</p>`, msg)
}

func TestRunUnknownCommandAnswersErrorFragment(t *testing.T) {
	s, _ := newTestServer(t)
	rec, frags := post(t, s.Handler(), "/heating/boost/run", "{}")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{ErrorKey}, frags.IDs())
	msg, _ := frags.Get(ErrorKey)
	assert.Contains(t, msg, "unknown command")
	assert.Contains(t, msg, "heating/boost")
}

func TestRunInvalidArgumentsAnswersErrorFragment(t *testing.T) {
	s, _ := newTestServer(t)
	_, frags := post(t, s.Handler(), "/lights/set/run", `[1,2]`)
	require.Equal(t, []string{ErrorKey}, frags.IDs())
	msg, _ := frags.Get(ErrorKey)
	assert.Contains(t, msg, "invalid arguments")
}

func TestPage(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lights/ctl", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<div id="panel-1">loading</div>`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alarms/ctl", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>alarms</title>")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/start/ctl", rec.Header().Get("Location"))
}

func TestParseFixturesRejectsBadEntries(t *testing.T) {
	_, err := ParseFixtures([]byte("commands:\n  lights:\n    - id: a\n      template: x\n"))
	assert.Error(t, err)

	_, err = ParseFixtures([]byte("commands:\n  lights/set:\n    - template: x\n"))
	assert.Error(t, err)

	f, err := ParseFixtures([]byte("commands:\n  lights/set:\n    - id: a\n      template: '{{'\n"))
	require.NoError(t, err)
	_, err = New(Config{}, f, nil)
	assert.Error(t, err)
}

func TestLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	f, err := LoadFixtures(path)
	require.NoError(t, err)
	assert.Len(t, f.Commands, 3)

	_, err = LoadFixtures(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestServeOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/lights/set/run", protocol.ContentType, strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), `{"status":`))
}
