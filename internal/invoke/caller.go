package invoke

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/homectlx/homectl/internal/args"
	"github.com/homectlx/homectl/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_caller.go -package=mocks github.com/homectlx/homectl/internal/invoke Caller

// Caller performs one command round-trip.
type Caller interface {
	Call(ctx context.Context, command string, a args.Map) (protocol.Fragments, error)
}

// CallError reports a failed round-trip. Status is zero when no response
// was received.
type CallError struct {
	Command string
	Status  int
	Err     error
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("command %s: status %d: %v", e.Command, e.Status, e.Err)
	}
	return fmt.Sprintf("command %s: %v", e.Command, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// HTTPCaller posts the argument map to <base>/<command>/run.
type HTTPCaller struct {
	base   string
	client *http.Client
}

func NewHTTPCaller(baseURL string, timeout time.Duration) *HTTPCaller {
	return &HTTPCaller{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// WithClient replaces the HTTP client, e.g. with an httptest server client.
func (c *HTTPCaller) WithClient(client *http.Client) *HTTPCaller {
	c.client = client
	return c
}

func (c *HTTPCaller) Call(ctx context.Context, command string, a args.Map) (protocol.Fragments, error) {
	path, err := protocol.Endpoint(command)
	if err != nil {
		return nil, &CallError{Command: command, Err: err}
	}
	body, err := a.Encode()
	if err != nil {
		return nil, &CallError{Command: command, Err: fmt.Errorf("encode arguments: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Command: command, Err: err}
	}
	req.Header.Set("Content-Type", protocol.ContentType)
	req.Header.Set("Accept", protocol.ContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &CallError{Command: command, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &CallError{
			Command: command,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		}
	}

	frags, err := protocol.DecodeFragments(resp.Body)
	if err != nil {
		return nil, &CallError{Command: command, Status: resp.StatusCode, Err: err}
	}
	return frags, nil
}
