package browser

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/interfaces"
)

func TestQueryFor(t *testing.T) {
	tests := []struct {
		name  string
		sel   interfaces.Selector
		query string
	}{
		{"id", interfaces.ByID("anubhavadarExtent3"), `[id="anubhavadarExtent3"]`},
		{"css", interfaces.ByCSS(".swal2-confirm"), ".swal2-confirm"},
		{"xpath", interfaces.ByXPath("//input[@name='username']"), "//input[@name='username']"},
		{"link text", interfaces.ByLinkText("Add/Update Cultivator"), `//a[normalize-space(.)="Add/Update Cultivator"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, opts := queryFor(tt.sel)
			assert.Equal(t, tt.query, query)
			assert.Len(t, opts, 1)
		})
	}
}

func TestJSLookup(t *testing.T) {
	assert.Equal(t, `document.getElementById("mobile0")`, jsLookup(interfaces.ByID("mobile0")))
	assert.Equal(t, `document.querySelector("[name=\"username\"]")`, jsLookup(interfaces.ByCSS(`[name="username"]`)))
	assert.Contains(t, jsLookup(interfaces.ByLinkText("Home")), `XPathResult.FIRST_ORDERED_NODE_TYPE`)
}

func TestJSString_EscapesQuotes(t *testing.T) {
	assert.Equal(t, `"it's \"quoted\""`, jsString(`it's "quoted"`))
}

func TestXPathString(t *testing.T) {
	assert.Equal(t, `"plain"`, xpathString("plain"))
	assert.Equal(t, `'say "hi"'`, xpathString(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "x", '"')`, xpathString(`it's "x"`))
}

func TestNewLimiter(t *testing.T) {
	unpaced := newLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, unpaced.Allow())
	}

	paced := newLimiter(time.Hour)
	assert.True(t, paced.Allow())
	assert.False(t, paced.Allow())
}

func TestAllocatorOptions_FromConfig(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Browser.ExecPath = "/opt/chrome/chrome"
	config.Browser.UserAgent = "ecrop-test"
	launcher := NewLauncher(config, arbor.NewLogger())

	withExtras := len(launcher.allocatorOptions())

	config.Browser.ExecPath = ""
	config.Browser.UserAgent = ""
	launcher = NewLauncher(config, arbor.NewLogger())

	assert.Equal(t, withExtras-2, len(launcher.allocatorOptions()))
	assert.Greater(t, len(launcher.allocatorOptions()), len(chromedp.DefaultExecAllocatorOptions))
}

// TestSession_AgainstLocalPage drives a real headless Chrome when one is installed
func TestSession_AgainstLocalPage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if _, err := exec.LookPath("google-chrome"); err != nil {
		if _, err := exec.LookPath("chromium"); err != nil {
			t.Skip("no Chrome binary available")
		}
	}

	config := common.NewDefaultConfig()
	config.Browser.Headless = true
	driver, err := NewLauncher(config, arbor.NewLogger()).Launch(context.Background())
	require.NoError(t, err)
	defer driver.Quit()

	ctx := context.Background()
	page := `data:text/html,<input id="ro" readonly value="1"><input id="rw" value=""><select id="s"><option value="0">0</option><option value="1">1</option></select>`
	require.NoError(t, driver.Navigate(ctx, page))

	require.NoError(t, driver.SetValue(ctx, interfaces.ByID("rw"), "9876543210"))
	value, err := driver.Value(ctx, interfaces.ByID("rw"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "9876543210", value)

	require.NoError(t, driver.SetValue(ctx, interfaces.ByID("ro"), "2.5"))
	value, err = driver.Value(ctx, interfaces.ByID("ro"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "2.5", value)

	require.NoError(t, driver.SelectOption(ctx, interfaces.ByID("s"), "1"))
	assert.Error(t, driver.SelectOption(ctx, interfaces.ByID("s"), "9"))

	err = driver.WaitPresent(ctx, interfaces.ByID("missing"), 200*time.Millisecond)
	assert.True(t, errors.Is(err, interfaces.ErrElementNotFound))

	shot := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, driver.Screenshot(ctx, shot))
	assert.FileExists(t, shot)

	require.NoError(t, driver.Quit())
	require.NoError(t, driver.Quit())
	err = driver.WaitPresent(ctx, interfaces.ByID("rw"), time.Second)
	assert.True(t, errors.Is(err, interfaces.ErrSessionLost))
}
