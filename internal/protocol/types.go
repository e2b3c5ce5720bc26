package protocol

import (
	"fmt"
	"strings"
)

// RunSuffix is appended to a command identifier to form its endpoint.
const RunSuffix = "run"

// ContentType is the media type of request bodies.
const ContentType = "application/json"

// Fragment is one entry of the server's fragment map: the id of a live
// element and the markup replacing it.
type Fragment struct {
	ID     string `json:"id"`
	Markup string `json:"markup"`
}

// Fragments keeps the server's key order, which is the order fragments are
// applied in.
type Fragments []Fragment

// IDs returns the fragment keys in order.
func (f Fragments) IDs() []string {
	ids := make([]string, len(f))
	for i, fr := range f {
		ids[i] = fr.ID
	}
	return ids
}

// Get returns the markup of id.
func (f Fragments) Get(id string) (string, bool) {
	for _, fr := range f {
		if fr.ID == id {
			return fr.Markup, true
		}
	}
	return "", false
}

// Endpoint derives the request path of a command identifier:
// "lights/set" → "/lights/set/run".
func Endpoint(command string) (string, error) {
	c := strings.Trim(command, "/")
	if c == "" {
		return "", fmt.Errorf("command identifier is empty")
	}
	return "/" + c + "/" + RunSuffix, nil
}
