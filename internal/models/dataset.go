package models

import "strings"

// DatasetRow is one record of the uploaded spreadsheet
type DatasetRow struct {
	KhataID string `json:"khata_id"` // KNO column
	Mobile  string `json:"mobile"`   // Mobile column
}

// Dataset is the immutable input of a run. Khatas are processed in input order,
// duplicates included; mobile lookups use the last row seen for a Khata.
type Dataset struct {
	Source string       `json:"source"`
	Rows   []DatasetRow `json:"rows"`

	mobiles map[string]string
}

// NewDataset builds a dataset from rows, trimming cells
func NewDataset(source string, rows []DatasetRow) *Dataset {
	ds := &Dataset{
		Source:  source,
		Rows:    make([]DatasetRow, 0, len(rows)),
		mobiles: make(map[string]string, len(rows)),
	}
	for _, row := range rows {
		row.KhataID = strings.TrimSpace(row.KhataID)
		row.Mobile = strings.TrimSpace(row.Mobile)
		ds.Rows = append(ds.Rows, row)
		if row.KhataID != "" {
			ds.mobiles[row.KhataID] = row.Mobile
		}
	}
	return ds
}

// Khatas returns the non-empty Khata ids in input order
func (d *Dataset) Khatas() []string {
	khatas := make([]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		if row.KhataID != "" {
			khatas = append(khatas, row.KhataID)
		}
	}
	return khatas
}

// MobileFor returns the replacement mobile recorded for a Khata
func (d *Dataset) MobileFor(khata string) (string, bool) {
	mobile, ok := d.mobiles[khata]
	return mobile, ok
}
