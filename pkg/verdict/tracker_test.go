package verdict

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/pageload-verifier/pkg/models"
)

// run feeds messages and a load status through a fresh tracker and returns
// the exit codes passed to the terminal action and the echoed output.
func run(t *testing.T, args []string, messages []string, status models.LoadStatus) ([]int, string) {
	t.Helper()

	var out bytes.Buffer
	var codes []int
	tr := NewTracker(ExpectedMessage(args), &out, func(code int) {
		codes = append(codes, code)
	})

	for _, msg := range messages {
		tr.OnConsoleMessage(msg)
	}
	tr.OnLoadFinished(status)

	return codes, out.String()
}

func TestExpectedMessage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no arguments", args: nil, want: ""},
		{name: "empty first argument", args: []string{""}, want: ""},
		{name: "first argument", args: []string{"Ready"}, want: "Ready"},
		{name: "extra arguments ignored", args: []string{"Ready", "Other"}, want: "Ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpectedMessage(tt.args))
		})
	}
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		messages []string
		status   models.LoadStatus
		wantCode int
	}{
		{
			name:     "A: expected message observed and load succeeds",
			args:     []string{"Ready"},
			messages: []string{"loading", "Ready"},
			status:   models.LoadSuccess,
			wantCode: 0,
		},
		{
			name:     "B: expected message missing",
			args:     []string{"Ready"},
			messages: []string{"loading"},
			status:   models.LoadSuccess,
			wantCode: 1,
		},
		{
			name:     "C: no message required and load fails",
			status:   models.LoadFail,
			wantCode: 1,
		},
		{
			name:     "D: no message required, silent console, load succeeds",
			status:   models.LoadSuccess,
			wantCode: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, _ := run(t, tt.args, tt.messages, tt.status)
			require.Len(t, codes, 1)
			assert.Equal(t, tt.wantCode, codes[0])
		})
	}
}

func TestNoMessageVerdictFollowsLoadOutcome(t *testing.T) {
	for _, status := range []models.LoadStatus{models.LoadSuccess, models.LoadFail} {
		tr := NewTracker("", nil, nil)
		assert.True(t, tr.Observed())

		tr.OnConsoleMessage("anything")
		tr.OnLoadFinished(status)

		verdict, decided := tr.Verdict()
		assert.True(t, decided)
		assert.Equal(t, status == models.LoadSuccess, verdict, "status %s", status)
	}
}

func TestMissingMessageFailsRegardlessOfLoad(t *testing.T) {
	for _, status := range []models.LoadStatus{models.LoadSuccess, models.LoadFail} {
		codes, _ := run(t, []string{"M"}, []string{"a", "b", "m", "M "}, status)
		assert.Equal(t, []int{1}, codes, "status %s", status)
	}
}

func TestMatchIsExact(t *testing.T) {
	tr := NewTracker("Ready", nil, nil)

	for _, msg := range []string{"ready", "Ready ", " Ready", "Ready\n", "Ready!"} {
		tr.OnConsoleMessage(msg)
		assert.False(t, tr.Observed(), "message %q must not match", msg)
	}

	tr.OnConsoleMessage("Ready")
	assert.True(t, tr.Observed())
}

func TestMatchPositionDoesNotMatter(t *testing.T) {
	first, _ := run(t, []string{"M"}, []string{"M", "x", "y", "z"}, models.LoadSuccess)
	last, _ := run(t, []string{"M"}, []string{"x", "y", "z", "M"}, models.LoadSuccess)

	assert.Equal(t, []int{0}, first)
	assert.Equal(t, first, last)
}

func TestRepeatedMatchIsIdempotent(t *testing.T) {
	once, _ := run(t, []string{"M"}, []string{"M"}, models.LoadSuccess)
	twice, _ := run(t, []string{"M"}, []string{"M", "M"}, models.LoadSuccess)

	assert.Equal(t, once, twice)
}

func TestObservedNeverReverts(t *testing.T) {
	tr := NewTracker("M", nil, nil)
	assert.False(t, tr.Observed())

	tr.OnConsoleMessage("M")
	tr.OnConsoleMessage("other")
	tr.OnConsoleMessage("")

	assert.True(t, tr.Observed())
}

func TestConsoleMessagesAreEchoedInOrder(t *testing.T) {
	_, out := run(t, []string{"Ready"}, []string{"loading", "Ready", "Ready", "done"}, models.LoadSuccess)
	assert.Equal(t, "loading\nReady\nReady\ndone\n", out)
}

func TestTerminalActionRunsOnce(t *testing.T) {
	var codes []int
	tr := NewTracker("", nil, func(code int) { codes = append(codes, code) })

	tr.OnLoadFinished(models.LoadSuccess)
	tr.OnLoadFinished(models.LoadFail)

	assert.Equal(t, []int{0}, codes)
	verdict, decided := tr.Verdict()
	assert.True(t, decided)
	assert.True(t, verdict)
}

func TestVerdictUndecidedBeforeLoad(t *testing.T) {
	tr := NewTracker("Ready", nil, nil)
	tr.OnConsoleMessage("Ready")

	_, decided := tr.Verdict()
	assert.False(t, decided)
	assert.Equal(t, "Ready", tr.Expected())
}
