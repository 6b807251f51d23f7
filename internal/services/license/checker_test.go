package license

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
)

const sheet = "VILLAGECODE,LICENSEKEY,OWNER\n1234,ABC-1,ravi\n5678.0,XYZ-9,\n9999,,blank key\n,KEY-0,blank village\n"

func newSheetServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func newChecker(url string, enabled bool) *Checker {
	config := common.NewDefaultConfig().License
	config.Enabled = enabled
	config.SheetURL = url
	return NewChecker(config, arbor.NewLogger())
}

func TestCheck_MatchesPublishedKey(t *testing.T) {
	server, hits := newSheetServer(t, http.StatusOK, sheet)
	checker := newChecker(server.URL, true)
	ctx := context.Background()

	assert.NoError(t, checker.Check(ctx, "1234", "ABC-1"))
	assert.NoError(t, checker.Check(ctx, "5678", "XYZ-9"))
	assert.True(t, errors.Is(checker.Check(ctx, "1234", "abc-1"), ErrInvalidLicense))
	assert.True(t, errors.Is(checker.Check(ctx, "0000", "ABC-1"), ErrInvalidLicense))
	assert.True(t, errors.Is(checker.Check(ctx, "9999", ""), ErrInvalidLicense))
	assert.Equal(t, int32(5), hits.Load(), "the sheet is fetched on every check")
}

func TestLoadKeys_DropsBlankRows(t *testing.T) {
	server, _ := newSheetServer(t, http.StatusOK, sheet)
	keys := newChecker(server.URL, true).LoadKeys(context.Background())
	assert.Equal(t, map[string]string{"1234": "ABC-1", "5678": "XYZ-9"}, keys)
}

func TestLoadKeys_FetchFailureRejectsEverything(t *testing.T) {
	server, _ := newSheetServer(t, http.StatusInternalServerError, "boom")
	checker := newChecker(server.URL, true)

	assert.Empty(t, checker.LoadKeys(context.Background()))
	assert.True(t, errors.Is(checker.Check(context.Background(), "1234", "ABC-1"), ErrInvalidLicense))
}

func TestLoadKeys_MissingColumns(t *testing.T) {
	server, _ := newSheetServer(t, http.StatusOK, "CODE,KEY\n1234,ABC-1\n")
	assert.Empty(t, newChecker(server.URL, true).LoadKeys(context.Background()))
}

func TestCheck_DisabledAcceptsAnything(t *testing.T) {
	server, hits := newSheetServer(t, http.StatusOK, sheet)
	require.NoError(t, newChecker(server.URL, false).Check(context.Background(), "1234", "wrong"))
	assert.Zero(t, hits.Load())
}
