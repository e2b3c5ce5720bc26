// Package bootstrap derives the first command of a control page from the
// page location.
package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/homectlx/homectl/internal/args"
)

// ErrNoCommand is returned when the location has no path to derive a
// command from.
var ErrNoCommand = errors.New("location has no command path")

// Seed is the initial invocation of a page.
type Seed struct {
	Command string
	Args    args.Map
}

// Resolve takes the first two path segments of location as the command
// identifier and every query parameter as a scalar argument. Repeated query
// keys keep their last value. A missing second segment yields an empty
// action, as in "lights/". Path segments are kept in their escaped form.
func Resolve(location string) (Seed, error) {
	u, err := url.Parse(location)
	if err != nil {
		return Seed{}, fmt.Errorf("parse location: %w", err)
	}

	segments := strings.Split(u.EscapedPath(), "/")
	if len(segments) < 2 || segments[1] == "" {
		return Seed{}, fmt.Errorf("%w: %q", ErrNoCommand, location)
	}

	// Segments stay percent-encoded so the command endpoint carries the
	// same bytes as the page path.
	action := ""
	if len(segments) > 2 {
		action = segments[2]
	}

	seed := Seed{
		Command: segments[1] + "/" + action,
		Args:    args.Map{},
	}
	for key, values := range u.Query() {
		seed.Args[key] = args.Scalar(values[len(values)-1])
	}
	return seed, nil
}
