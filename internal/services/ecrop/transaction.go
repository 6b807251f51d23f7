package ecrop

import (
	"context"
	"fmt"

	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
)

// Transaction performs the UI sequence that commits one Owner Update for a row.
// A failing step abandons the row; nothing is retried.
type Transaction struct {
	driver      interfaces.BrowserDriver
	log         *models.WorkflowLog
	timeouts    Timeouts
	ownerOption string
}

func NewTransaction(driver interfaces.BrowserDriver, log *models.WorkflowLog, timeouts Timeouts, ownerOption string) *Transaction {
	if ownerOption == "" {
		ownerOption = "1"
	}
	return &Transaction{driver: driver, log: log, timeouts: timeouts, ownerOption: ownerOption}
}

// Commit runs the update for row with the resolved mobile and claimed extent
func (t *Transaction) Commit(ctx context.Context, row int, decision MobileDecision, claimedExtent float64) Outcome {
	if decision.Action == Reject {
		return failed("invalid mobile", ErrMobileRejected)
	}

	if decision.Action == UseReplacement {
		if err := t.driver.SetValue(ctx, mobileField(row), decision.Mobile); err != nil {
			return t.abort(row, "write mobile", err)
		}
		t.log.Info("Row %d: Mobile replaced with %s", row, decision.Mobile)
	}

	if err := t.driver.SelectOption(ctx, occupantTypeField(row), t.ownerOption); err != nil {
		return t.abort(row, "select owner", err)
	}
	if err := t.driver.RunScript(ctx, occupantTypeHook(row, t.ownerOption), nil); err != nil {
		return t.abort(row, "owner type hook", err)
	}
	t.log.Info("Row %d: Owner selected", row)

	if err := t.driver.WaitPresent(ctx, occupantExtentField, t.timeouts.Transition); err != nil {
		return t.abort(row, "occupant extent", err)
	}
	if err := t.driver.SetValue(ctx, occupantExtentField, FormatExtent(claimedExtent)); err != nil {
		return t.abort(row, "occupant extent", err)
	}

	if err := t.driver.WaitClickable(ctx, ownerSubmitButton, t.timeouts.Transition); err != nil {
		return t.abort(row, "submit", err)
	}
	if err := t.driver.Click(ctx, ownerSubmitButton); err != nil {
		return t.abort(row, "submit", err)
	}
	t.log.Info("Owner Update submitted.")

	if err := t.driver.WaitClickable(ctx, confirmButton, t.timeouts.Transition); err != nil {
		return t.abort(row, "confirm", err)
	}
	if err := t.driver.Click(ctx, confirmButton); err != nil {
		return t.abort(row, "confirm", err)
	}
	t.log.Info("Final confirmation clicked.")

	if err := sleep(ctx, t.timeouts.Settle); err != nil {
		return t.abort(row, "settle", err)
	}

	return updated()
}

func (t *Transaction) abort(row int, step string, err error) Outcome {
	t.log.Error("Row %d error: %s: %v", row, step, err)
	return failed(step, fmt.Errorf("%w: %s: %w", ErrTransaction, step, err))
}
