package activities

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"dev/bravebird/pageload-verifier/pkg/config"
	"dev/bravebird/pageload-verifier/pkg/host"
	"dev/bravebird/pageload-verifier/pkg/host/hosttest"
	"dev/bravebird/pageload-verifier/pkg/models"
	"dev/bravebird/pageload-verifier/pkg/temporal/workflows"
)

func newTestActivities(h *hosttest.ScriptedHost, seen *[]workflows.VerifyPageInput) *Activities {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	a := NewActivities(config.Default(), logger)
	a.NewHost = func(_ context.Context, input workflows.VerifyPageInput) (host.PageHost, error) {
		if seen != nil {
			*seen = append(*seen, input)
		}
		return h, nil
	}
	return a
}

func TestVerifyPageActivity(t *testing.T) {
	tests := []struct {
		name        string
		expected    string
		messages    []string
		status      models.LoadStatus
		wantVerdict bool
		wantExit    int
	}{
		{name: "message observed", expected: "Ready", messages: []string{"loading", "Ready"}, status: models.LoadSuccess, wantVerdict: true, wantExit: 0},
		{name: "message missing", expected: "Ready", messages: []string{"loading"}, status: models.LoadSuccess, wantExit: 1},
		{name: "load failed", status: models.LoadFail, wantExit: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s testsuite.WorkflowTestSuite
			env := s.NewTestActivityEnvironment()

			h := &hosttest.ScriptedHost{Messages: tt.messages, Status: tt.status}
			var seen []workflows.VerifyPageInput
			acts := newTestActivities(h, &seen)
			env.RegisterActivity(acts)

			input := workflows.VerifyPageInput{
				RunID:           "run-1",
				PageURL:         "http://localhost/index.html",
				ExpectedMessage: tt.expected,
				Headless:        true,
				Timeout:         5,
			}
			val, err := env.ExecuteActivity(acts.VerifyPageActivity, input)
			require.NoError(t, err)

			var result models.VerificationResult
			require.NoError(t, val.Get(&result))

			assert.Equal(t, "run-1", result.RunID)
			assert.Equal(t, tt.wantVerdict, result.Verdict)
			assert.Equal(t, tt.wantExit, result.ExitCode)
			assert.Equal(t, tt.status, result.LoadStatus)
			assert.Equal(t, tt.messages, result.ConsoleMessages)

			assert.Equal(t, []string{"http://localhost/index.html"}, h.Opened())
			assert.True(t, h.Closed(), "host is closed after the verification")
			assert.Equal(t, []workflows.VerifyPageInput{input}, seen)
		})
	}
}

func TestVerifyPageActivity_HostError(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()

	h := &hosttest.ScriptedHost{Err: errors.New("target crashed")}
	acts := newTestActivities(h, nil)
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.VerifyPageActivity, workflows.VerifyPageInput{RunID: "run-2", PageURL: "about:blank"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target crashed")
	assert.True(t, h.Closed())
}

func TestVerifyPageActivity_InvalidPage(t *testing.T) {
	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()

	h := &hosttest.ScriptedHost{}
	acts := newTestActivities(h, nil)
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.VerifyPageActivity, workflows.VerifyPageInput{RunID: "run-3"})
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, workflows.ErrTypeInvalidPage, appErr.Type())
	assert.True(t, appErr.NonRetryable())
	assert.Empty(t, h.Opened(), "no page is opened for an invalid reference")
}
