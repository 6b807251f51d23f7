package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/interfaces"
)

// Launcher starts one Chrome process per run
type Launcher struct {
	config common.BrowserConfig
	logger arbor.ILogger
}

var _ interfaces.DriverLauncher = (*Launcher)(nil)

func NewLauncher(config *common.Config, logger arbor.ILogger) *Launcher {
	return &Launcher{config: config.Browser, logger: logger}
}

// allocatorOptions builds the Chrome flags from config
func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.Flag("no-sandbox", l.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", l.config.DisableDevShm),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	)
	if l.config.WindowWidth > 0 && l.config.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(l.config.WindowWidth, l.config.WindowHeight))
	}
	if l.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.config.UserAgent))
	}
	if l.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.config.ExecPath))
	}
	return opts
}

// Launch starts the browser and checks it responds before handing it out
func (l *Launcher) Launch(ctx context.Context) (interfaces.BrowserDriver, error) {
	startTime := time.Now()
	startupTimeout := common.ParseDurationOr(l.config.StartupTimeout, 30*time.Second)

	// The browser outlives ctx; each driver call is bounded separately
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			l.logger.Debug().Msgf(format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			l.logger.Debug().Msgf("chromedp: "+format, args...)
		}),
	)

	session := &Session{
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		allocCancel:     allocCancel,
		logger:          l.logger,
		limiter:         newLimiter(common.ParseDurationOr(l.config.ActionInterval, 0)),
		actionTimeout:   common.ParseDurationOr(l.config.ActionTimeout, 10*time.Second),
		pageLoadTimeout: common.ParseDurationOr(l.config.PageLoadTimeout, 60*time.Second),
	}

	// The first Run allocates the browser and ties it to the context it is given,
	// so it must run on browserCtx itself rather than a timeout child.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(browserCtx)
	}()

	select {
	case err := <-started:
		if err != nil {
			session.Quit()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-time.After(startupTimeout):
		session.Quit()
		return nil, fmt.Errorf("failed to start browser: no response after %s", startupTimeout)
	case <-ctx.Done():
		session.Quit()
		return nil, ctx.Err()
	}

	if l.config.AutoAcceptDialogs {
		session.acceptDialogs()
	}

	// Startup test
	if err := session.run(ctx, startupTimeout, chromedp.Navigate("about:blank")); err != nil {
		session.Quit()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	l.logger.Info().
		Bool("headless", l.config.Headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser launched")

	return session, nil
}

// newLimiter paces driver actions; a zero interval disables pacing
func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
