// Package host defines the page host capability used by the verifier and its
// Chrome DevTools implementation.
package host

import (
	"context"
	"errors"

	"dev/bravebird/pageload-verifier/pkg/models"
)

// ErrNotLaunched is returned when a page is opened before the browser is running.
var ErrNotLaunched = errors.New("browser not launched")

// Listener receives the events of one page-open attempt.
type Listener interface {
	OnConsoleMessage(msg string)
	OnLoadFinished(status models.LoadStatus)
}

// PageHost opens pages and reports their console output and load outcome.
//
// Open delivers every console message of the page strictly before a single
// OnLoadFinished call, all from the calling goroutine, and returns once the
// outcome has been delivered. An error means the host itself failed and no
// outcome was delivered.
type PageHost interface {
	Open(ctx context.Context, url string, l Listener) error
	Close() error
}
