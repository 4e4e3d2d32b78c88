package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dev/bravebird/pageload-verifier/pkg/config"
	"dev/bravebird/pageload-verifier/pkg/host"
	"dev/bravebird/pageload-verifier/pkg/logging"
	"dev/bravebird/pageload-verifier/pkg/models"
	"dev/bravebird/pageload-verifier/pkg/verdict"
	"dev/bravebird/pageload-verifier/pkg/verifier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(models.ExitFail)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newRootCommand(cfg, os.Stdout, os.Stderr).execute(ctx, os.Args[1:])
	stop()

	os.Exit(code)
}

type rootCommand struct {
	cfg    config.Config
	stdout io.Writer
	stderr io.Writer
	cmd    *cobra.Command

	exitCode int
}

func newRootCommand(cfg config.Config, stdout, stderr io.Writer) *rootCommand {
	c := &rootCommand{cfg: cfg, stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:   "verify [flags] [--] [expected-message]",
		Short: "Load a page in headless Chrome and check its console output",
		Long: `Loads a local page in headless Chrome, echoes every console message to
standard output and exits 0 when the page loaded successfully and the expected
message (if given) was logged before the load completed. Exits 1 otherwise.

A message starting with "-" must follow "--", as in: verify -- "-1"`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.run,
	}

	flags := cmd.Flags()
	flags.StringVar(&c.cfg.PagePath, "page", cfg.PagePath, "page to load: local path or URL")
	flags.BoolVar(&c.cfg.Headless, "headless", cfg.Headless, "run Chrome without a window")
	flags.BoolVar(&c.cfg.NoSandbox, "no-sandbox", cfg.NoSandbox, "disable the Chrome sandbox")
	flags.StringVar(&c.cfg.ChromeBin, "chrome-bin", cfg.ChromeBin, "Chrome binary, downloaded when empty")
	flags.StringVar(&c.cfg.BrowserURL, "browser-url", cfg.BrowserURL, "connect to a running browser's DevTools endpoint instead of launching one")
	flags.DurationVar(&c.cfg.Timeout, "timeout", cfg.Timeout, "fail when the page has not loaded after this long, 0 waits forever")
	flags.StringVar(&c.cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	flags.StringVar(&c.cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")

	c.cmd = cmd
	return c
}

// execute runs the command and returns the process exit code
func (c *rootCommand) execute(ctx context.Context, args []string) int {
	c.cmd.SetArgs(args)
	c.cmd.SetOut(c.stderr)
	c.cmd.SetErr(c.stderr)

	if err := c.cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(c.stderr, "Error:", err)
		return models.ExitFail
	}
	return c.exitCode
}

func (c *rootCommand) run(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(c.cfg.LogLevel, c.cfg.LogFormat, c.stderr)
	if err != nil {
		return err
	}
	if c.cfg.Timeout < 0 {
		return fmt.Errorf("invalid --timeout %s: must not be negative", c.cfg.Timeout)
	}

	pageURL, err := verifier.ResolvePageURL(c.cfg.PagePath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rodHost := host.NewRodHost(c.cfg.RodConfig(), logger)
	if err := rodHost.Launch(ctx); err != nil {
		return err
	}
	defer func() {
		if err := rodHost.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close browser")
		}
	}()

	v := verifier.New(rodHost, verifier.Options{
		Stdout: c.stdout,
		Logger: logger,
	})

	start := time.Now()
	result, err := v.Verify(ctx, pageURL, verdict.ExpectedMessage(args))
	if err != nil {
		return err
	}

	logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Debug("Page verified")
	c.exitCode = result.ExitCode
	return nil
}
