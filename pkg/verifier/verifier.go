// Package verifier opens a page through a page host and turns its console
// output and load outcome into a verification result.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"dev/bravebird/pageload-verifier/pkg/host"
	"dev/bravebird/pageload-verifier/pkg/models"
	"dev/bravebird/pageload-verifier/pkg/verdict"
)

// ErrNoLoadOutcome is returned when the host returns without reporting how the load ended
var ErrNoLoadOutcome = errors.New("page host returned without a load outcome")

// Options configures a Verifier
type Options struct {
	// Stdout receives every console message verbatim, one per line
	Stdout io.Writer
	// OnConsole is called for every console message after it has been echoed
	OnConsole func(msg string)
	Logger    logrus.FieldLogger
}

// Verifier runs page verifications on a page host
type Verifier struct {
	host host.PageHost
	opts Options
	log  logrus.FieldLogger
}

// New creates a verifier using h to open pages
func New(h host.PageHost, opts Options) *Verifier {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Verifier{host: h, opts: opts, log: log}
}

// Verify loads pageURL and decides whether it loaded successfully with the
// expected console message observed. An empty expected message requires only
// a successful load. The returned error reports host failures; a failed
// verdict is not an error.
func (v *Verifier) Verify(ctx context.Context, pageURL, expected string) (models.VerificationResult, error) {
	result := models.VerificationResult{
		PageURL:         pageURL,
		ExpectedMessage: expected,
		Status:          models.StatusRunning,
		ExitCode:        models.ExitFail,
	}
	startTime := time.Now()

	exited := false
	tracker := verdict.NewTracker(expected, v.opts.Stdout, func(code int) {
		exited = true
		result.ExitCode = code
	})
	l := &listener{
		tracker: tracker,
		result:  &result,
		hook:    v.opts.OnConsole,
	}

	log := v.log.WithFields(logrus.Fields{"url": pageURL, "expected": expected})
	log.Debug("Opening page")

	err := v.host.Open(ctx, pageURL, l)
	result.Duration = time.Since(startTime).Milliseconds()
	result.MessageObserved = tracker.Observed()

	if err != nil {
		result.Status = models.StatusFailed
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("failed to open page: %w", err)
	}
	if !exited {
		result.Status = models.StatusFailed
		result.ErrorMessage = ErrNoLoadOutcome.Error()
		return result, ErrNoLoadOutcome
	}

	result.Verdict, _ = tracker.Verdict()
	result.Status = models.StatusFromVerdict(result.Verdict)

	log.WithFields(logrus.Fields{
		"load_status": result.LoadStatus,
		"observed":    result.MessageObserved,
		"verdict":     result.Verdict,
		"duration_ms": result.Duration,
	}).Info("Verification finished")

	return result, nil
}

// listener feeds host events to the tracker and records them on the result
type listener struct {
	tracker *verdict.Tracker
	result  *models.VerificationResult
	hook    func(string)
}

func (l *listener) OnConsoleMessage(msg string) {
	l.tracker.OnConsoleMessage(msg)
	l.result.ConsoleMessages = append(l.result.ConsoleMessages, msg)
	if l.hook != nil {
		l.hook(msg)
	}
}

func (l *listener) OnLoadFinished(status models.LoadStatus) {
	if l.result.LoadStatus == "" {
		l.result.LoadStatus = status
	}
	l.tracker.OnLoadFinished(status)
}

// ResolvePageURL turns a local path into an absolute file URL; values that
// already carry a scheme are returned unchanged.
func ResolvePageURL(path string) (string, error) {
	if path == "" {
		return "", errors.New("page path is empty")
	}

	if u, err := url.Parse(path); err == nil {
		switch u.Scheme {
		case "http", "https", "file", "about", "data":
			return path, nil
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve page path: %w", err)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
