package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrElementNotFound is returned when an element does not reach the awaited
	// condition within the timeout
	ErrElementNotFound = errors.New("element not found")

	// ErrSessionLost is returned once the browser session is gone (crashed, closed
	// or quit). No further call on the driver can succeed.
	ErrSessionLost = errors.New("browser session lost")
)

// SelectorKind tells the driver how to interpret a selector value
type SelectorKind int

const (
	SelectByID SelectorKind = iota
	SelectByCSS
	SelectByXPath
	SelectByLinkText
)

// Selector addresses an element on the current page. Elements are always looked up
// again by selector, so a handle can never go stale after a re-render.
type Selector struct {
	Kind  SelectorKind
	Value string
}

func ByID(id string) Selector         { return Selector{Kind: SelectByID, Value: id} }
func ByCSS(css string) Selector       { return Selector{Kind: SelectByCSS, Value: css} }
func ByXPath(xpath string) Selector   { return Selector{Kind: SelectByXPath, Value: xpath} }
func ByLinkText(text string) Selector { return Selector{Kind: SelectByLinkText, Value: text} }

func (s Selector) String() string {
	switch s.Kind {
	case SelectByID:
		return "#" + s.Value
	case SelectByCSS:
		return s.Value
	case SelectByXPath:
		return "xpath:" + s.Value
	case SelectByLinkText:
		return fmt.Sprintf("link:%q", s.Value)
	default:
		return s.Value
	}
}

// BrowserDriver is the automation facade the workflow drives the remote UI with.
// Every wait is bounded by the given timeout; element-level failures wrap
// ErrElementNotFound and session-level failures wrap ErrSessionLost.
type BrowserDriver interface {
	// Navigate loads url in the current tab
	Navigate(ctx context.Context, url string) error

	// WaitPresent waits until the element exists in the DOM
	WaitPresent(ctx context.Context, sel Selector, timeout time.Duration) error

	// WaitClickable waits until the element is visible and enabled
	WaitClickable(ctx context.Context, sel Selector, timeout time.Duration) error

	// Value reads the element's current value, waiting for it to exist
	Value(ctx context.Context, sel Selector, timeout time.Duration) (string, error)

	// SetValue replaces the element's value. Editable inputs are typed into; read-only
	// or disabled inputs are assigned by script with input/change events dispatched.
	// The scripted path bypasses any client-side validation bound to key events.
	SetValue(ctx context.Context, sel Selector, text string) error

	// Click clicks the element
	Click(ctx context.Context, sel Selector) error

	// SelectOption selects the option with the given value in a <select>
	SelectOption(ctx context.Context, sel Selector, value string) error

	// RunScript evaluates JavaScript in the page; result may be nil
	RunScript(ctx context.Context, script string, result interface{}) error

	// ScrollIntoView scrolls the element into the viewport
	ScrollIntoView(ctx context.Context, sel Selector) error

	// Screenshot writes a PNG of the current viewport to path
	Screenshot(ctx context.Context, path string) error

	// PageHTML returns the outer HTML of the current document
	PageHTML(ctx context.Context) (string, error)

	// Quit releases the browser. Safe to call more than once.
	Quit() error
}

// DriverLauncher acquires a new browser session
type DriverLauncher interface {
	Launch(ctx context.Context) (BrowserDriver, error)
}
