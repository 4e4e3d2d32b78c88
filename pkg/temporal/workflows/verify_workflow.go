package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/pageload-verifier/pkg/models"
)

const (
	// DefaultActivityTimeout bounds a verification whose page load has no timeout of its own
	DefaultActivityTimeout = 10 * time.Minute

	// ErrTypeInvalidPage marks a page reference that can never be opened
	ErrTypeInvalidPage = "InvalidPageError"

	// VerifyPageActivityName is the name workers register the verify activity under
	VerifyPageActivityName = "VerifyPageActivity"

	progressQuery = "getProgress"
)

// VerifyPageInput is the input for the page verification activity
type VerifyPageInput struct {
	RunID           string `json:"run_id"`
	PageURL         string `json:"page_url"`
	ExpectedMessage string `json:"expected_message,omitempty"`
	Headless        bool   `json:"headless"`
	Timeout         int    `json:"timeout_seconds"` // Page load timeout, 0 disables it
}

// PageVerificationWorkflow verifies a single page.
//
// A failed verdict is a result, not an error, and is never retried. Only
// host failures (browser crash, lost connection) are retried, up to
// RetryAttempts. A canceled run ends with a canceled error and reports
// StatusCanceled through the progress query.
func PageVerificationWorkflow(ctx workflow.Context, input models.VerificationInput) (models.VerificationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting page verification", "runID", input.RunID, "page", input.PageURL)

	result := models.VerificationResult{
		RunID:           input.RunID,
		Status:          models.StatusRunning,
		PageURL:         input.PageURL,
		ExpectedMessage: input.ExpectedMessage,
		ExitCode:        models.ExitFail,
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, progressQuery, func() (models.VerificationResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startToClose := DefaultActivityTimeout
	if input.Timeout > 0 {
		startToClose = time.Duration(input.Timeout)*time.Second + time.Minute
	}
	attempts := input.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: startToClose,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        int32(attempts),
			NonRetryableErrorTypes: []string{ErrTypeInvalidPage},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	startTime := workflow.Now(ctx)

	var verification models.VerificationResult
	err = workflow.ExecuteActivity(ctx, VerifyPageActivityName, VerifyPageInput{
		RunID:           input.RunID,
		PageURL:         input.PageURL,
		ExpectedMessage: input.ExpectedMessage,
		Headless:        input.Headless,
		Timeout:         input.Timeout,
	}).Get(ctx, &verification)
	if err != nil {
		result.Duration = workflow.Now(ctx).Sub(startTime).Milliseconds()
		if temporal.IsCanceledError(err) {
			result.Status = models.StatusCanceled
			result.ErrorMessage = "Verification canceled"
			logger.Info("Page verification canceled", "runID", input.RunID)
			return result, err
		}
		result.Status = models.StatusFailed
		result.ErrorMessage = "Failed to verify page: " + err.Error()
		logger.Warn("Page verification failed", "runID", input.RunID, "error", err)
		return result, nil
	}

	result = verification
	result.RunID = input.RunID
	result.Status = models.StatusFromVerdict(result.Verdict)

	logger.Info("Page verification completed", "status", result.Status, "verdict", result.Verdict, "duration", result.Duration)
	return result, nil
}

// BatchVerificationInput represents a set of pages verified in parallel
type BatchVerificationInput struct {
	BatchID string                     `json:"batch_id"`
	Pages   []models.VerificationInput `json:"pages"`
}

// BatchVerificationResult represents the result of a batch
type BatchVerificationResult struct {
	Results []models.VerificationResult `json:"results"`
	Passed  int                         `json:"passed"`
	Failed  int                         `json:"failed"`
}

// BatchVerificationWorkflow verifies several pages in parallel as child workflows
func BatchVerificationWorkflow(ctx workflow.Context, input BatchVerificationInput) (BatchVerificationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting batch verification", "batchID", input.BatchID, "pageCount", len(input.Pages))

	result := BatchVerificationResult{
		Results: make([]models.VerificationResult, len(input.Pages)),
	}

	// Execute child workflows in parallel using selectors
	selector := workflow.NewSelector(ctx)

	for i, page := range input.Pages {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("%s-%d", input.BatchID, i),
		})
		future := workflow.ExecuteChildWorkflow(childCtx, PageVerificationWorkflow, page)

		idx := i
		runID := page.RunID
		selector.AddFuture(future, func(f workflow.Future) {
			var childResult models.VerificationResult
			if err := f.Get(ctx, &childResult); err != nil {
				childResult = models.VerificationResult{
					RunID:        runID,
					Status:       models.StatusFailed,
					ExitCode:     models.ExitFail,
					ErrorMessage: err.Error(),
				}
			}
			result.Results[idx] = childResult
		})
	}

	// Wait for all child workflows to complete
	for range input.Pages {
		selector.Select(ctx)
	}

	for _, r := range result.Results {
		if r.Verdict {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	logger.Info("Batch verification completed", "passed", result.Passed, "failed", result.Failed)
	return result, nil
}
