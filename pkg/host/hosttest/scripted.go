// Package hosttest provides an in-memory page host for tests.
package hosttest

import (
	"context"
	"sync"

	"dev/bravebird/pageload-verifier/pkg/host"
	"dev/bravebird/pageload-verifier/pkg/models"
)

// ScriptedHost replays a fixed console stream followed by a load status.
type ScriptedHost struct {
	Messages []string
	Status   models.LoadStatus
	Err      error // returned from Open instead of an outcome when set

	mu     sync.Mutex
	opened []string
	closed bool
}

var _ host.PageHost = (*ScriptedHost)(nil)

// Open records url and replays the script into l.
func (h *ScriptedHost) Open(ctx context.Context, url string, l host.Listener) error {
	h.mu.Lock()
	h.opened = append(h.opened, url)
	h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if h.Err != nil {
		return h.Err
	}

	for _, msg := range h.Messages {
		l.OnConsoleMessage(msg)
	}

	status := h.Status
	if status == "" {
		status = models.LoadSuccess
	}
	l.OnLoadFinished(status)
	return nil
}

// Close marks the host closed.
func (h *ScriptedHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Opened returns the URLs passed to Open.
func (h *ScriptedHost) Opened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opened...)
}

// Closed reports whether Close was called.
func (h *ScriptedHost) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
