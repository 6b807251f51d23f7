package ecrop

import (
	"fmt"

	"github.com/ternarybob/ecrop/internal/interfaces"
)

// Element ids of the eCrop "Add/Update Cultivator" page. Survey row ids embed the
// row's position, which shifts when an updated row leaves the pending list.
func availableExtentField(row int) interfaces.Selector {
	return interfaces.ByID(fmt.Sprintf("availableExtent%d", row))
}

func claimedExtentField(row int) interfaces.Selector {
	return interfaces.ByID(fmt.Sprintf("anubhavadarExtent%d", row))
}

func mobileField(row int) interfaces.Selector {
	return interfaces.ByID(fmt.Sprintf("mobile%d", row))
}

func occupantTypeField(row int) interfaces.Selector {
	return interfaces.ByID(fmt.Sprintf("searchParam%d", row))
}

// occupantTypeHook is the page function bound to the occupant type selector. A plain
// option change does not fire it.
func occupantTypeHook(row int, option string) string {
	return fmt.Sprintf("onUserTypeChange(%d, '%s')", row, option)
}

// pendingRowsScript counts the survey rows currently listed for the Khata
const pendingRowsScript = `document.querySelectorAll('[id^="anubhavadarExtent"]').length`

var (
	occupantExtentField = interfaces.ByID("occupantExtentOE")
	ownerSubmitButton   = interfaces.ByID("ownerbtnId")
	confirmButton       = interfaces.ByCSS(".swal2-confirm")
	khataSearchField    = interfaces.ByID("fromKhnoId")
	khataSearchButton   = interfaces.ByID("searchId")
	anySurveyRow        = interfaces.ByCSS(`[id^="anubhavadarExtent"]`)

	usernameField       = interfaces.ByCSS(`[name="username"]`)
	passwordField       = interfaces.ByID("password")
	transactionDropdown = interfaces.ByID("transactionDropdown")
	villageSelect       = interfaces.ByID("village")
)
