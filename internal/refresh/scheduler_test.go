package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/homectlx/homectl/internal/dom"
	"github.com/homectlx/homectl/internal/events"
	"github.com/homectlx/homectl/internal/gate/gatetest"
)

const page = `<html><body>
<div id="telemetry">
  <span class="execute" data-func="telemetry/logs" data-autoupdatedelay="5000"></span>
  <span class="execute" data-func="telemetry/cpu" data-autoupdatedelay="1000"></span>
</div>
<div id="static"><p>nothing to refresh</p></div>
<div id="self" data-autoupdatedelay="10"></div>
</body></html>`

func setup(t *testing.T) (*dom.Document, *gatetest.Clock, *events.Hub, *[]string, *Scheduler) {
	t.Helper()
	doc, err := dom.ParseString(page)
	require.NoError(t, err)

	clock := &gatetest.Clock{}
	hub := events.NewHub(32)
	var fired []string
	s := New(doc, func(origin *html.Node) {
		fired = append(fired, dom.AttrOr(origin, "data-func", ""))
	}, Options{AfterFunc: clock.AfterFunc, Hub: hub})
	return doc, clock, hub, &fired, s
}

func TestArmStartsOneTimerPerDirective(t *testing.T) {
	doc, clock, hub, fired, s := setup(t)

	n := s.Arm("telemetry", doc.ElementByID("telemetry"))
	assert.Equal(t, 2, n)
	assert.True(t, s.IsScheduled("telemetry"))
	assert.Equal(t, 2, s.Pending())
	assert.Equal(t, 1, hub.Count(events.RefreshArmed))

	clock.Advance(time.Second)
	assert.Equal(t, []string{"telemetry/cpu"}, *fired)
	assert.False(t, s.IsScheduled("telemetry"), "first fire unmarks the key")
	assert.Equal(t, 1, s.Pending())

	clock.Advance(4 * time.Second)
	assert.Equal(t, []string{"telemetry/cpu", "telemetry/logs"}, *fired)
	assert.Equal(t, 0, s.Pending())
}

func TestArmDoesNotDoubleSchedule(t *testing.T) {
	doc, clock, _, fired, s := setup(t)
	el := doc.ElementByID("telemetry")

	assert.Equal(t, 2, s.Arm("telemetry", el))
	assert.Equal(t, 0, s.Arm("telemetry", el))
	assert.Equal(t, 2, clock.Armed())

	clock.Advance(5 * time.Second)
	assert.Len(t, *fired, 2)
}

func TestArmWithoutDirectivesLeavesKeyUnmarked(t *testing.T) {
	doc, clock, _, _, s := setup(t)

	assert.Equal(t, 0, s.Arm("static", doc.ElementByID("static")))
	assert.False(t, s.IsScheduled("static"))
	assert.Equal(t, 0, clock.Armed())
	assert.Equal(t, 0, s.Arm("missing", nil))
}

func TestArmIgnoresDirectiveOnFragmentRoot(t *testing.T) {
	doc, _, _, _, s := setup(t)
	assert.Equal(t, 0, s.Arm("self", doc.ElementByID("self")))
}

func TestRearmAfterFire(t *testing.T) {
	doc, clock, _, fired, s := setup(t)
	el := doc.ElementByID("telemetry")

	s.Arm("telemetry", el)
	clock.Advance(time.Second)
	assert.Equal(t, 2, s.Arm("telemetry", el), "key is free again after the first fire")
	clock.Advance(10 * time.Second)
	assert.Len(t, *fired, 4)
}

func TestParseDelay(t *testing.T) {
	cases := map[string]time.Duration{
		"1000": time.Second,
		"250":  250 * time.Millisecond,
		"1.5":  1500 * time.Microsecond,
		"":     0,
		"soon": 0,
		"-5":   0,
	}
	for raw, want := range cases {
		if got := parseDelay(raw); got != want {
			t.Fatalf("parseDelay(%q) = %v, want %v", raw, got, want)
		}
	}
}
