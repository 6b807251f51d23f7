package license

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/httpclient"
	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/services/dataset"
)

const (
	villageColumn = "VILLAGECODE"
	keyColumn     = "LICENSEKEY"

	maxSheetBytes = 4 << 20
)

// ErrInvalidLicense is returned when the key does not match the published key for the village
var ErrInvalidLicense = errors.New("Invalid license key")

// Checker validates license keys against a published CSV of village codes and keys.
// The sheet is fetched on every check so revocations apply to the next run.
type Checker struct {
	enabled  bool
	sheetURL string
	client   *http.Client
	logger   arbor.ILogger
}

var _ interfaces.LicenseChecker = (*Checker)(nil)

func NewChecker(config common.LicenseConfig, logger arbor.ILogger) *Checker {
	return &Checker{
		enabled:  config.Enabled,
		sheetURL: config.SheetURL,
		client:   httpclient.NewDefaultHTTPClient(common.ParseDurationOr(config.Timeout, 30*time.Second)),
		logger:   logger,
	}
}

// Check passes when licensing is disabled or key equals the key published for villageCode
func (c *Checker) Check(ctx context.Context, villageCode, key string) error {
	if !c.enabled {
		return nil
	}

	keys := c.LoadKeys(ctx)
	expected, ok := keys[strings.TrimSpace(villageCode)]
	if !ok || key != expected {
		c.logger.Warn().Str("village_code", villageCode).Bool("known_village", ok).Msg("License check failed")
		return ErrInvalidLicense
	}
	return nil
}

// LoadKeys fetches the sheet and maps village code to key. Any fetch or parse
// failure yields an empty map, which rejects every key.
func (c *Checker) LoadKeys(ctx context.Context) map[string]string {
	body, err := httpclient.FetchBody(ctx, c.client, c.sheetURL, maxSheetBytes)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to load license map")
		return map[string]string{}
	}

	keys, err := parseSheet(body)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to load license map")
		return map[string]string{}
	}

	c.logger.Debug().Int("villages", len(keys)).Msg("License map loaded")
	return keys
}

// parseSheet reads VILLAGECODE and LICENSEKEY columns, dropping rows where either is blank
func parseSheet(body []byte) (map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(body, []byte("\ufeff"))))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse license sheet: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("license sheet is empty")
	}

	villageCol, keyCol := -1, -1
	for i, name := range records[0] {
		switch strings.TrimSpace(name) {
		case villageColumn:
			villageCol = i
		case keyColumn:
			keyCol = i
		}
	}
	if villageCol < 0 || keyCol < 0 {
		return nil, fmt.Errorf("license sheet missing %s or %s column", villageColumn, keyColumn)
	}

	keys := make(map[string]string, len(records)-1)
	for _, record := range records[1:] {
		if villageCol >= len(record) || keyCol >= len(record) {
			continue
		}
		village := dataset.NormalizeCell(record[villageCol])
		key := dataset.NormalizeCell(record[keyCol])
		if village == "" || key == "" {
			continue
		}
		keys[village] = key
	}
	return keys, nil
}
