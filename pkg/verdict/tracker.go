// Package verdict reconciles the console stream of a page with its load
// outcome into a single pass/fail decision.
package verdict

import (
	"fmt"
	"io"

	"dev/bravebird/pageload-verifier/pkg/models"
)

// ExpectedMessage returns the expected console message from positional
// arguments. The first argument is used when present; an empty
// result means no message is required.
func ExpectedMessage(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// Tracker observes console messages of a single page-open attempt and decides
// the final verdict when the load outcome arrives.
//
// A Tracker is not safe for concurrent use. The page host delivers all
// callbacks from one goroutine, console messages strictly before the load
// outcome.
type Tracker struct {
	expected string
	observed bool

	out  io.Writer
	exit func(code int)

	finished bool
	verdict  bool
}

// NewTracker creates a tracker. An empty expected message is treated as
// absent. Every console message is echoed to out, and exit is invoked exactly
// once with the exit code of the run.
func NewTracker(expected string, out io.Writer, exit func(code int)) *Tracker {
	if out == nil {
		out = io.Discard
	}
	return &Tracker{
		expected: expected,
		observed: expected == "",
		out:      out,
		exit:     exit,
	}
}

// OnConsoleMessage echoes msg and marks the expected message as observed on
// the first exact match.
func (t *Tracker) OnConsoleMessage(msg string) {
	fmt.Fprintln(t.out, msg)

	if !t.observed && t.expected != "" && msg == t.expected {
		t.observed = true
	}
}

// OnLoadFinished computes the final verdict and runs the terminal action.
// Only the first call has any effect.
func (t *Tracker) OnLoadFinished(status models.LoadStatus) {
	if t.finished {
		return
	}
	t.finished = true
	t.verdict = status == models.LoadSuccess && t.observed

	if t.exit != nil {
		t.exit(ExitCode(t.verdict))
	}
}

// Expected returns the expected message, empty when none is required.
func (t *Tracker) Expected() string {
	return t.expected
}

// Observed reports whether the expected message was seen, or is not required.
func (t *Tracker) Observed() bool {
	return t.observed
}

// Verdict returns the final verdict and whether it has been decided yet.
func (t *Tracker) Verdict() (verdict bool, decided bool) {
	return t.verdict, t.finished
}

// ExitCode maps a verdict to the process exit code.
func ExitCode(verdict bool) int {
	if verdict {
		return models.ExitPass
	}
	return models.ExitFail
}
