package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homectlx/homectl/internal/devserver"
	"github.com/homectlx/homectl/internal/dom"
	"github.com/homectlx/homectl/internal/events"
	"github.com/homectlx/homectl/internal/gate/gatetest"
	"github.com/homectlx/homectl/internal/invoke"
	"github.com/homectlx/homectl/internal/log"
)

const e2eFixtures = `
pages:
  lights: |
    <html><body><div id="_body">loading</div><div id="_error"></div></body></html>
commands:
  lights/ctl:
    - id: _body
      template: |
        <div id="_body"><form>
        <select name="zone"><option>hall</option><option {{if eq (index .Args "zone") "kitchen"}}selected{{end}}>kitchen</option></select>
        <input type="checkbox" name="lamps" value="l1" checked><input type="checkbox" name="lamps" value="l2">
        <button id="apply" class="execute" data-func="lights/set">apply</button>
        </form><div id="status">idle</div></div>
  lights/set:
    - id: status
      template: '<div id="status">{{index .Args "zone"}}:{{range index .Args "lamps"}}{{.}}{{end}} #{{.Count}}</div>'
`

func TestEndToEndAgainstDevServer(t *testing.T) {
	fixtures, err := devserver.ParseFixtures([]byte(e2eFixtures))
	require.NoError(t, err)
	srv, err := devserver.New(devserver.Config{}, fixtures, log.Get())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/lights/ctl")
	require.NoError(t, err)
	doc, err := dom.Parse(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)

	hub := events.NewHub(64)
	e := New(doc, Options{
		Caller:    invoke.NewHTTPCaller(ts.URL, 5*time.Second).WithClient(ts.Client()),
		AfterFunc: (&gatetest.Clock{}).AfterFunc,
		Hub:       hub,
		Logger:    log.Get(),
	})
	defer e.Close()

	ctx := context.Background()
	_, err = e.Start(ctx, ts.URL+"/lights/ctl?zone=kitchen")
	require.NoError(t, err)
	require.NotNil(t, doc.ElementByID("apply"), "bootstrap rendered the control form")

	out, err := e.Click(ctx, "apply")
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "_error"}, out.Applied)

	status, ok := doc.OuterHTML("status")
	require.True(t, ok)
	assert.Equal(t, `<div id="status">kitchen:l1 #1</div>`, status)
	assert.Equal(t, 2, hub.Count(events.CommandSucceeded))

	_, err = e.Click(ctx, "apply")
	require.NoError(t, err)
	status, _ = doc.OuterHTML("status")
	assert.Equal(t, `<div id="status">kitchen:l1 #2</div>`, status)
}

func TestEndToEndUnknownCommandShowsError(t *testing.T) {
	srv, err := devserver.New(devserver.Config{}, nil, log.Get())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/heating/ctl")
	require.NoError(t, err)
	page, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	doc, err := dom.ParseString(string(page))
	require.NoError(t, err)

	e := New(doc, Options{
		Caller: invoke.NewHTTPCaller(ts.URL, 5*time.Second).WithClient(ts.Client()),
		Logger: log.Get(),
	})
	defer e.Close()

	_, err = e.Start(context.Background(), "/heating/boost")
	require.NoError(t, err)
	banner, ok := doc.OuterHTML("_error")
	require.True(t, ok)
	assert.Contains(t, banner, "unknown command")
}
