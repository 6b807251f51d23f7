package ecrop

import (
	"context"

	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
)

// Credentials identify the portal user and the village to work in
type Credentials struct {
	Username    string
	Password    string
	VillageCode string
}

// Navigator logs in and opens the "Add/Update Cultivator" page for a village.
// The portal shows a captcha, so the login button is left to the operator watching
// the browser; the navigator waits for the post-login menu instead.
type Navigator struct {
	driver       interfaces.BrowserDriver
	log          *models.WorkflowLog
	timeouts     Timeouts
	portalURL    string
	menuLinkText string
}

func NewNavigator(driver interfaces.BrowserDriver, log *models.WorkflowLog, timeouts Timeouts, portalURL, menuLinkText string) *Navigator {
	return &Navigator{
		driver:       driver,
		log:          log,
		timeouts:     timeouts,
		portalURL:    portalURL,
		menuLinkText: menuLinkText,
	}
}

// Open runs the login and village selection. Every failure is fatal for the run.
func (n *Navigator) Open(ctx context.Context, creds Credentials) error {
	if err := n.driver.Navigate(ctx, n.portalURL); err != nil {
		return fatal("open portal", err)
	}
	if err := sleep(ctx, n.timeouts.LoginSettle); err != nil {
		return fatal("open portal", err)
	}

	if err := n.driver.WaitPresent(ctx, usernameField, n.timeouts.Navigation); err != nil {
		return fatal("login form", err)
	}
	if err := n.driver.SetValue(ctx, usernameField, creds.Username); err != nil {
		return fatal("enter username", err)
	}
	if err := n.driver.SetValue(ctx, passwordField, creds.Password); err != nil {
		return fatal("enter password", err)
	}

	if err := n.driver.WaitPresent(ctx, transactionDropdown, n.timeouts.Navigation); err != nil {
		return fatal("login", err)
	}
	if err := n.driver.Click(ctx, transactionDropdown); err != nil {
		return fatal("open transaction menu", err)
	}
	if err := n.driver.Click(ctx, interfaces.ByLinkText(n.menuLinkText)); err != nil {
		return fatal("open cultivator page", err)
	}

	if err := n.driver.WaitPresent(ctx, villageSelect, n.timeouts.Navigation); err != nil {
		return fatal("village selector", err)
	}
	if err := n.driver.SelectOption(ctx, villageSelect, creds.VillageCode); err != nil {
		return fatal("select village", err)
	}
	n.log.Info("Village selected: %s", creds.VillageCode)

	if err := sleep(ctx, n.timeouts.VillageSettle); err != nil {
		return fatal("select village", err)
	}
	n.log.Info("Navigation complete. Village selected.")
	return nil
}
