package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/ecrop/internal/interfaces"
)

// Session is a chromedp-backed BrowserDriver owning one browser process.
// Every call runs on a context derived from the browser context, bounded by its
// own timeout and cancelled early when the caller's ctx is done.
type Session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	logger          arbor.ILogger
	limiter         *rate.Limiter
	actionTimeout   time.Duration
	pageLoadTimeout time.Duration

	closed   atomic.Bool
	quitOnce sync.Once
	quitErr  error
}

var _ interfaces.BrowserDriver = (*Session)(nil)

// run executes actions under timeout and maps the result onto the driver errors
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return interfaces.ErrSessionLost
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = s.actionTimeout
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if s.closed.Load() || s.browserCtx.Err() != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrSessionLost, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// wait runs actions that wait on sel; a timeout means the element never qualified
func (s *Session) wait(ctx context.Context, sel interfaces.Selector, timeout time.Duration, actions ...chromedp.Action) error {
	err := s.run(ctx, timeout, actions...)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", interfaces.ErrElementNotFound, sel, timeout)
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.pageLoadTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	s.logger.Debug().Str("url", url).Msg("Navigated")
	return nil
}

func (s *Session) WaitPresent(ctx context.Context, sel interfaces.Selector, timeout time.Duration) error {
	query, opts := queryFor(sel)
	return s.wait(ctx, sel, timeout, chromedp.WaitReady(query, opts...))
}

func (s *Session) WaitClickable(ctx context.Context, sel interfaces.Selector, timeout time.Duration) error {
	query, opts := queryFor(sel)
	return s.wait(ctx, sel, timeout,
		chromedp.WaitVisible(query, opts...),
		chromedp.WaitEnabled(query, opts...),
	)
}

func (s *Session) Value(ctx context.Context, sel interfaces.Selector, timeout time.Duration) (string, error) {
	query, opts := queryFor(sel)
	var value string
	if err := s.wait(ctx, sel, timeout,
		chromedp.WaitReady(query, opts...),
		chromedp.Value(query, &value, opts...),
	); err != nil {
		return "", err
	}
	return value, nil
}

// SetValue types into editable inputs. Read-only or disabled inputs get the value
// assigned by script followed by input and change events; page handlers bound to
// key events never see that value.
func (s *Session) SetValue(ctx context.Context, sel interfaces.Selector, text string) error {
	query, opts := queryFor(sel)
	lookup := jsLookup(sel)

	var editable bool
	if err := s.wait(ctx, sel, s.actionTimeout,
		chromedp.WaitReady(query, opts...),
		chromedp.Evaluate(fmt.Sprintf(`(() => { const el = %s; return !!el && !el.disabled && !el.readOnly; })()`, lookup), &editable),
	); err != nil {
		return err
	}

	if editable {
		err := s.run(ctx, s.actionTimeout,
			chromedp.Clear(query, opts...),
			chromedp.SendKeys(query, text, opts...),
		)
		if err == nil {
			return nil
		}
		if errors.Is(err, interfaces.ErrSessionLost) || ctx.Err() != nil {
			return err
		}
		s.logger.Debug().Err(err).Str("selector", sel.String()).Msg("Typing rejected, assigning value by script")
	}

	var assigned bool
	script := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return false;
		el.value = %s;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, lookup, jsString(text))
	if err := s.run(ctx, s.actionTimeout, chromedp.Evaluate(script, &assigned)); err != nil {
		return err
	}
	if !assigned {
		return fmt.Errorf("%w: %s", interfaces.ErrElementNotFound, sel)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, sel interfaces.Selector) error {
	query, opts := queryFor(sel)
	return s.wait(ctx, sel, s.actionTimeout, chromedp.Click(query, append(opts, chromedp.NodeVisible)...))
}

// SelectOption sets the value of a <select> and fires its change event. It fails
// when the select has no option with that value.
func (s *Session) SelectOption(ctx context.Context, sel interfaces.Selector, value string) error {
	query, opts := queryFor(sel)

	var status string
	script := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return 'missing';
		if (!Array.from(el.options || []).some(o => o.value === %s)) return 'no-option';
		el.value = %s;
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return 'ok';
	})()`, jsLookup(sel), jsString(value), jsString(value))

	if err := s.wait(ctx, sel, s.actionTimeout,
		chromedp.WaitReady(query, opts...),
		chromedp.Evaluate(script, &status),
	); err != nil {
		return err
	}

	switch status {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("%w: %s", interfaces.ErrElementNotFound, sel)
	default:
		return fmt.Errorf("%s has no option with value %q", sel, value)
	}
}

func (s *Session) RunScript(ctx context.Context, script string, result interface{}) error {
	if err := s.run(ctx, s.actionTimeout, chromedp.Evaluate(script, result)); err != nil {
		return fmt.Errorf("script %q: %w", script, err)
	}
	return nil
}

func (s *Session) ScrollIntoView(ctx context.Context, sel interfaces.Selector) error {
	query, opts := queryFor(sel)
	return s.wait(ctx, sel, s.actionTimeout, chromedp.ScrollIntoView(query, opts...))
}

func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, s.actionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

func (s *Session) PageHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

// Quit closes the browser and releases both contexts. Later calls return the
// result of the first one.
func (s *Session) Quit() error {
	s.quitOnce.Do(func() {
		s.closed.Store(true)
		if err := chromedp.Cancel(s.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.quitErr = err
		}
		s.browserCancel()
		s.allocCancel()
		s.logger.Debug().Msg("Browser session closed")
	})
	return s.quitErr
}

// acceptDialogs accepts native alert/confirm dialogs so they never block the page
func (s *Session) acceptDialogs() {
	chromedp.ListenTarget(s.browserCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		s.logger.Info().Str("type", string(e.Type)).Str("message", e.Message).Msg("Accepting JavaScript dialog")
		go func() {
			if err := chromedp.Run(s.browserCtx, page.HandleJavaScriptDialog(true)); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to accept JavaScript dialog")
			}
		}()
	})
}

// queryFor translates a selector into a chromedp query
func queryFor(sel interfaces.Selector) (string, []chromedp.QueryOption) {
	switch sel.Kind {
	case interfaces.SelectByID:
		return fmt.Sprintf(`[id=%s]`, jsString(sel.Value)), []chromedp.QueryOption{chromedp.ByQuery}
	case interfaces.SelectByXPath:
		return sel.Value, []chromedp.QueryOption{chromedp.BySearch}
	case interfaces.SelectByLinkText:
		return fmt.Sprintf(`//a[normalize-space(.)=%s]`, xpathString(sel.Value)), []chromedp.QueryOption{chromedp.BySearch}
	default:
		return sel.Value, []chromedp.QueryOption{chromedp.ByQuery}
	}
}

// jsLookup returns a JavaScript expression evaluating to the element or null
func jsLookup(sel interfaces.Selector) string {
	switch sel.Kind {
	case interfaces.SelectByID:
		return fmt.Sprintf("document.getElementById(%s)", jsString(sel.Value))
	case interfaces.SelectByXPath:
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", jsString(sel.Value))
	case interfaces.SelectByLinkText:
		query, _ := queryFor(sel)
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", jsString(query))
	default:
		return fmt.Sprintf("document.querySelector(%s)", jsString(sel.Value))
	}
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// xpathString quotes s as an XPath 1.0 literal, which has no escape sequences
func xpathString(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, "'"):
		return `'` + s + `'`
	default:
		parts := "concat("
		for i, chunk := range splitKeep(s, '"') {
			if i > 0 {
				parts += ", "
			}
			if chunk == `"` {
				parts += `'"'`
			} else {
				parts += `"` + chunk + `"`
			}
		}
		return parts + ")"
	}
}

// splitKeep splits s around sep, keeping each sep as its own chunk
func splitKeep(s string, sep byte) []string {
	var chunks []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				chunks = append(chunks, s[start:i])
			}
			chunks = append(chunks, string(sep))
			start = i + 1
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}
