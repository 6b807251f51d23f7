package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
)

const (
	KhataColumn  = "KNO"
	MobileColumn = "Mobile"
)

var (
	// ErrMissingColumns is returned when the header row lacks KNO or Mobile
	ErrMissingColumns = errors.New("Excel missing required columns: 'KNO' and/or 'Mobile'")
	// ErrUnsupportedFormat is returned for extensions other than xlsx, xlsm and csv
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
)

// Loader reads the operator dataset from the first sheet of a workbook or from a CSV file
type Loader struct {
	logger arbor.ILogger
}

var _ interfaces.DatasetLoader = (*Loader)(nil)

func NewLoader(logger arbor.ILogger) *Loader {
	return &Loader{logger: logger}
}

// Load parses the file at path by extension
func (l *Loader) Load(path string) (*models.Dataset, error) {
	var (
		records [][]string
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readWorkbook(path)
	case ".csv":
		records, err = readCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}

	rows, err := parseRecords(records)
	if err != nil {
		return nil, err
	}

	dataset := models.NewDataset(filepath.Base(path), rows)
	l.logger.Info().
		Str("file", filepath.Base(path)).
		Int("rows", len(rows)).
		Int("khatas", len(dataset.Khatas())).
		Msg("Dataset loaded")
	return dataset, nil
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
	}

	// Raw values keep long mobile numbers out of scientific notation
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// parseRecords maps the header row onto KNO and Mobile and normalizes every cell
func parseRecords(records [][]string) ([]models.DatasetRow, error) {
	if len(records) == 0 {
		return nil, ErrMissingColumns
	}

	khataCol, mobileCol := -1, -1
	for i, name := range records[0] {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case KhataColumn:
			khataCol = i
		case MobileColumn:
			mobileCol = i
		}
	}
	if khataCol < 0 || mobileCol < 0 {
		return nil, ErrMissingColumns
	}

	rows := make([]models.DatasetRow, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, models.DatasetRow{
			KhataID: NormalizeCell(cell(record, khataCol)),
			Mobile:  NormalizeCell(cell(record, mobileCol)),
		})
	}
	return rows, nil
}

func cell(record []string, col int) string {
	if col < len(record) {
		return record[col]
	}
	return ""
}

// NormalizeCell trims a spreadsheet cell and drops a zero fraction from whole numbers,
// so 101.0 and 101 name the same Khata
func NormalizeCell(value string) string {
	value = strings.TrimSpace(value)
	whole, frac, found := strings.Cut(value, ".")
	if !found || whole == "" || strings.Trim(frac, "0") != "" {
		return value
	}
	for _, r := range whole {
		if r < '0' || r > '9' {
			return value
		}
	}
	return whole
}
