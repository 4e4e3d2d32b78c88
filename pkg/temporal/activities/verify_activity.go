package activities

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"dev/bravebird/pageload-verifier/pkg/config"
	"dev/bravebird/pageload-verifier/pkg/host"
	"dev/bravebird/pageload-verifier/pkg/models"
	"dev/bravebird/pageload-verifier/pkg/temporal/workflows"
	"dev/bravebird/pageload-verifier/pkg/verifier"
)

// HostFactory starts a page host for one verification
type HostFactory func(ctx context.Context, input workflows.VerifyPageInput) (host.PageHost, error)

// Activities holds activity implementations
type Activities struct {
	Config  config.Config
	Logger  logrus.FieldLogger
	NewHost HostFactory
}

// NewActivities creates activities that verify pages in a freshly launched Chrome
func NewActivities(cfg config.Config, logger logrus.FieldLogger) *Activities {
	a := &Activities{
		Config: cfg,
		Logger: logger,
	}
	a.NewHost = a.launchRodHost
	return a
}

// VerifyPageActivity loads a page and returns its verdict
func (a *Activities) VerifyPageActivity(ctx context.Context, input workflows.VerifyPageInput) (models.VerificationResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Verifying page", "runID", input.RunID, "page", input.PageURL, "headless", input.Headless)

	pageURL, err := verifier.ResolvePageURL(input.PageURL)
	if err != nil {
		return models.VerificationResult{}, temporal.NewNonRetryableApplicationError(err.Error(), workflows.ErrTypeInvalidPage, err)
	}

	h, err := a.NewHost(ctx, input)
	if err != nil {
		return models.VerificationResult{}, err
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Warn("Failed to close browser", "error", err)
		}
	}()

	count := 0
	v := verifier.New(h, verifier.Options{
		Logger: a.logger().WithField("run_id", input.RunID),
		OnConsole: func(msg string) {
			count++
			// Heartbeat for long-running page loads
			activity.RecordHeartbeat(ctx, count)
		},
	})

	result, err := v.Verify(ctx, pageURL, input.ExpectedMessage)
	if err != nil {
		return result, err
	}
	result.RunID = input.RunID

	logger.Info("Page verified", "runID", input.RunID, "verdict", result.Verdict, "consoleMessages", count)
	return result, nil
}

func (a *Activities) launchRodHost(ctx context.Context, input workflows.VerifyPageInput) (host.PageHost, error) {
	cfg := a.Config.RodConfig()
	cfg.Headless = input.Headless
	cfg.Timeout = time.Duration(input.Timeout) * time.Second

	h := host.NewRodHost(cfg, a.logger())
	if err := h.Launch(ctx); err != nil {
		return nil, fmt.Errorf("failed to start page host: %w", err)
	}
	return h, nil
}

func (a *Activities) logger() logrus.FieldLogger {
	if a.Logger == nil {
		return logrus.StandardLogger()
	}
	return a.Logger
}
