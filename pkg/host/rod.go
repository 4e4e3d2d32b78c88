package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"dev/bravebird/pageload-verifier/pkg/models"
)

// RodConfig configures the Chrome instance behind a RodHost.
type RodConfig struct {
	Bin        string        // Chrome binary, empty for the launcher's default
	ControlURL string        // Existing DevTools endpoint; skips launching when set
	Headless   bool
	NoSandbox  bool          // Required when running as root in containers
	Timeout    time.Duration // Navigation timeout, zero waits forever
}

// RodHost is a PageHost backed by a Chrome instance driven over the DevTools protocol.
type RodHost struct {
	cfg      RodConfig
	log      logrus.FieldLogger
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodHost creates a host; call Launch before opening pages.
func NewRodHost(cfg RodConfig, log logrus.FieldLogger) *RodHost {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RodHost{cfg: cfg, log: log.WithField("component", "rod-host")}
}

// Launch starts Chrome, or connects to ControlURL when configured.
func (h *RodHost) Launch(ctx context.Context) error {
	controlURL := h.cfg.ControlURL

	if controlURL == "" {
		l := launcher.New().Context(ctx)

		if h.cfg.Bin != "" {
			l = l.Bin(h.cfg.Bin)
		}
		l = l.Headless(h.cfg.Headless)

		// Additional Chrome flags for Docker compatibility
		if h.cfg.NoSandbox {
			l = l.Set("no-sandbox")
		}
		l = l.Set("disable-gpu")
		l = l.Set("disable-dev-shm-usage")

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		h.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		h.cleanupLauncher()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	h.browser = browser

	h.log.WithFields(logrus.Fields{
		"headless": h.cfg.Headless,
		"launched": h.launcher != nil,
	}).Debug("Browser ready")
	return nil
}

// Open loads url in a fresh page and reports its console output and load outcome to l.
func (h *RodHost) Open(ctx context.Context, url string, l Listener) error {
	if h.browser == nil {
		return ErrNotLaunched
	}

	page, err := h.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	// Let about:blank settle so its load event cannot be mistaken for ours
	if err := page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("failed to prepare page: %w", err)
	}

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if h.cfg.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		loadCtx, cancelTimeout = context.WithTimeout(loadCtx, h.cfg.Timeout)
		defer cancelTimeout()
	}
	p := page.Context(loadCtx)

	// One subscription for both events keeps the DevTools stream order, so
	// every console message is seen before the load event ends the loop.
	loaded := false
	wait := p.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		l.OnConsoleMessage(ConsoleText(e.Args))
	}, func(e *proto.PageLoadEventFired) bool {
		loaded = true
		return true
	})

	navDone := make(chan error, 1)
	go func() {
		err := p.Navigate(url)
		if err != nil {
			cancel()
		}
		navDone <- err
	}()

	wait()
	navErr := <-navDone

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("page load interrupted: %w", err)
	}

	status := models.LoadSuccess
	var navFailure *rod.NavigationError
	switch {
	case errors.As(navErr, &navFailure):
		h.log.WithField("reason", navFailure.Reason).Warn("Navigation failed")
		status = models.LoadFail
	case navErr != nil:
		h.log.WithError(navErr).Warn("Navigation failed")
		status = models.LoadFail
	case !loaded:
		h.log.WithField("timeout", h.cfg.Timeout).Warn("Page did not finish loading")
		status = models.LoadFail
	}

	l.OnLoadFinished(status)
	return nil
}

// Close closes the browser and removes the launcher's profile directory.
func (h *RodHost) Close() error {
	if h.browser == nil {
		return nil
	}

	err := h.browser.Close()
	h.browser = nil
	h.cleanupLauncher()
	return err
}

func (h *RodHost) cleanupLauncher() {
	if h.launcher != nil {
		h.launcher.Cleanup()
		h.launcher = nil
	}
}

// ConsoleText renders the arguments of a console call the way they are
// printed: values joined by a single space, strings verbatim.
func ConsoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		switch {
		case a.Subtype == proto.RuntimeRemoteObjectSubtypeNull:
			parts = append(parts, "null")
		case !a.Value.Nil():
			parts = append(parts, a.Value.String())
		case a.UnserializableValue != "":
			parts = append(parts, string(a.UnserializableValue))
		case a.Description != "":
			parts = append(parts, a.Description)
		default:
			parts = append(parts, string(a.Type))
		}
	}
	return strings.Join(parts, " ")
}
