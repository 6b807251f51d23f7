package ecrop

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
)

// fakeRow is one survey row of the scripted page
type fakeRow struct {
	available string
	claimed   string
	mobile    string
	// stuck rows stay on the page after a confirmed update
	stuck bool
}

// fakePage is an in-memory eCrop page driven through the BrowserDriver interface.
// Rows of the searched Khata come from khatas; a confirmed update removes the
// selected row unless it is stuck.
type fakePage struct {
	mu sync.Mutex

	khatas map[string][]fakeRow
	rows   []fakeRow

	// missing holds selector values that never appear
	missing map[string]bool
	// failures maps "op:selector" to the error returned by that call
	failures map[string]error
	// sessionLostAfter makes every call fail with ErrSessionLost once that many
	// calls were made (0 disables)
	sessionLostAfter int

	screenshotErr error
	quitErr       error
	html          string

	calls       int
	selectedRow int
	values      map[string]string
	actions     []string
	searches    []string
	commits     []fakeRow
	screenshots []string
	quitCalls   int
	navigated   []string
}

func newFakePage(khatas map[string][]fakeRow) *fakePage {
	return &fakePage{
		khatas:      khatas,
		missing:     make(map[string]bool),
		failures:    make(map[string]error),
		values:      make(map[string]string),
		selectedRow: -1,
	}
}

func (p *fakePage) enter(op string, sel interfaces.Selector) error {
	p.calls++
	if p.sessionLostAfter > 0 && p.calls > p.sessionLostAfter {
		return interfaces.ErrSessionLost
	}
	if p.quitCalls > 0 {
		return interfaces.ErrSessionLost
	}
	if err, ok := p.failures[op+":"+sel.Value]; ok {
		return err
	}
	p.actions = append(p.actions, op+":"+sel.Value)
	return nil
}

// rowIndex parses ids such as "mobile3" for the given prefix
func rowIndex(id, prefix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil {
		return 0, false
	}
	return i, true
}

func (p *fakePage) exists(sel interfaces.Selector) bool {
	if p.missing[sel.Value] {
		return false
	}
	if sel.Value == `[id^="anubhavadarExtent"]` {
		return len(p.rows) > 0
	}
	for _, prefix := range []string{"anubhavadarExtent", "availableExtent", "mobile", "searchParam"} {
		if i, ok := rowIndex(sel.Value, prefix); ok {
			return i < len(p.rows)
		}
	}
	return true
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("navigate", interfaces.Selector{Value: url}); err != nil {
		return err
	}
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) WaitPresent(ctx context.Context, sel interfaces.Selector, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("wait", sel); err != nil {
		return err
	}
	if !p.exists(sel) {
		return fmt.Errorf("%w: %s", interfaces.ErrElementNotFound, sel)
	}
	return nil
}

func (p *fakePage) WaitClickable(ctx context.Context, sel interfaces.Selector, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("clickable", sel); err != nil {
		return err
	}
	if !p.exists(sel) {
		return fmt.Errorf("%w: %s", interfaces.ErrElementNotFound, sel)
	}
	return nil
}

func (p *fakePage) Value(ctx context.Context, sel interfaces.Selector, timeout time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("value", sel); err != nil {
		return "", err
	}
	if !p.exists(sel) {
		return "", fmt.Errorf("%w: %s", interfaces.ErrElementNotFound, sel)
	}
	if i, ok := rowIndex(sel.Value, "availableExtent"); ok {
		return p.rows[i].available, nil
	}
	if i, ok := rowIndex(sel.Value, "anubhavadarExtent"); ok {
		return p.rows[i].claimed, nil
	}
	if i, ok := rowIndex(sel.Value, "mobile"); ok {
		return p.rows[i].mobile, nil
	}
	return p.values[sel.Value], nil
}

func (p *fakePage) SetValue(ctx context.Context, sel interfaces.Selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("set", sel); err != nil {
		return err
	}
	if !p.exists(sel) {
		return fmt.Errorf("%w: %s", interfaces.ErrElementNotFound, sel)
	}
	if i, ok := rowIndex(sel.Value, "mobile"); ok {
		p.rows[i].mobile = text
	}
	p.values[sel.Value] = text
	return nil
}

func (p *fakePage) Click(ctx context.Context, sel interfaces.Selector) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("click", sel); err != nil {
		return err
	}
	switch sel.Value {
	case "searchId":
		khata := p.values["fromKhnoId"]
		p.searches = append(p.searches, khata)
		p.rows = append([]fakeRow(nil), p.khatas[khata]...)
		p.selectedRow = -1
	case ".swal2-confirm":
		if p.selectedRow >= 0 && p.selectedRow < len(p.rows) {
			row := p.rows[p.selectedRow]
			p.commits = append(p.commits, row)
			if !row.stuck {
				p.rows = append(p.rows[:p.selectedRow], p.rows[p.selectedRow+1:]...)
			}
		}
		p.selectedRow = -1
	}
	return nil
}

func (p *fakePage) SelectOption(ctx context.Context, sel interfaces.Selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("select", sel); err != nil {
		return err
	}
	if !p.exists(sel) {
		return fmt.Errorf("%w: %s", interfaces.ErrElementNotFound, sel)
	}
	if i, ok := rowIndex(sel.Value, "searchParam"); ok && value == "1" {
		p.selectedRow = i
	}
	p.values[sel.Value] = value
	return nil
}

func (p *fakePage) RunScript(ctx context.Context, script string, result interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("script", interfaces.Selector{Value: script}); err != nil {
		return err
	}
	if script == pendingRowsScript {
		if n, ok := result.(*int); ok {
			*n = len(p.rows)
		}
	}
	return nil
}

func (p *fakePage) ScrollIntoView(ctx context.Context, sel interfaces.Selector) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enter("scroll", sel)
}

func (p *fakePage) Screenshot(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.screenshotErr != nil {
		return p.screenshotErr
	}
	p.screenshots = append(p.screenshots, path)
	return nil
}

func (p *fakePage) PageHTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("html", interfaces.Selector{Value: "document"}); err != nil {
		return "", err
	}
	return p.html, nil
}

func (p *fakePage) Quit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quitCalls++
	return p.quitErr
}

func (p *fakePage) did(action string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.actions {
		if a == action {
			return true
		}
	}
	return false
}

// fakeLauncher hands out a single fakePage
type fakeLauncher struct {
	page     *fakePage
	err      error
	launched int
}

func (l *fakeLauncher) Launch(ctx context.Context) (interfaces.BrowserDriver, error) {
	l.launched++
	if l.err != nil {
		return nil, l.err
	}
	return l.page, nil
}

type replacementRecord struct {
	khata  string
	row    int
	mobile string
}

// memAudit records audit calls in memory
type memAudit struct {
	mu             sync.Mutex
	replacements   []replacementRecord
	invalidMobiles []replacementRecord
	skipped        map[string]string
	skippedOrder   []string
}

func newMemAudit() *memAudit {
	return &memAudit{skipped: make(map[string]string)}
}

func (a *memAudit) RecordReplacement(khata string, row int, mobile string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replacements = append(a.replacements, replacementRecord{khata, row, mobile})
	return nil
}

func (a *memAudit) RecordInvalidMobile(khata string, row int, mobile string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidMobiles = append(a.invalidMobiles, replacementRecord{khata, row, mobile})
	return nil
}

func (a *memAudit) RecordSkippedKhata(khata string, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped[khata] = reason
	a.skippedOrder = append(a.skippedOrder, khata)
	return nil
}

// testTimeouts removes every settle delay
func testTimeouts() Timeouts {
	return Timeouts{
		RowDiscovery: time.Millisecond,
		FieldRead:    time.Millisecond,
		Transition:   time.Millisecond,
		SearchResult: time.Millisecond,
		Navigation:   time.Millisecond,
	}
}

type scanFixture struct {
	page    *fakePage
	audit   *memAudit
	log     *models.WorkflowLog
	scanner *Scanner
}

func newScanFixture(t *testing.T, rows []fakeRow, dataset *models.Dataset, maxRepeated int, opts ...ScannerOption) *scanFixture {
	t.Helper()
	page := newFakePage(nil)
	page.rows = rows
	audit := newMemAudit()
	log := models.NewWorkflowLog()
	logger := arbor.NewLogger()
	timeouts := testTimeouts()

	resolver := NewResolver(dataset, audit, logger)
	transaction := NewTransaction(page, log, timeouts, "1")
	scanner := NewScanner(page, resolver, transaction, log, logger, timeouts, maxRepeated, opts...)
	return &scanFixture{page: page, audit: audit, log: log, scanner: scanner}
}
