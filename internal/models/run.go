package models

import "time"

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed" // fatal session error or launch failure
)

// KhataResult summarises one Khata of a run
type KhataResult struct {
	KhataID      string `json:"khata_id"`
	RowsSeen     int    `json:"rows_seen"`
	Updated      int    `json:"updated"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	SearchFailed bool   `json:"search_failed"`
	Diverged     bool   `json:"diverged"`    // a row kept reappearing after update
	SkipReason   string `json:"skip_reason"` // set when Updated == 0
}

// RunReport is the stored record of one workflow run. Runs are history only and
// are never resumed.
type RunReport struct {
	ID             string             `json:"id" badgerhold:"key"`
	VillageCode    string             `json:"village_code"`
	DatasetFile    string             `json:"dataset_file"`
	Username       string             `json:"username"`
	Status         string             `json:"status" badgerhold:"index"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	FatalError     string             `json:"fatal_error,omitempty"`
	ScreenshotPath string             `json:"screenshot_path,omitempty"`
	Khatas         []KhataResult      `json:"khatas"`
	Log            []WorkflowLogEntry `json:"log"`
}

// TotalUpdated sums the update counters of every Khata
func (r *RunReport) TotalUpdated() int {
	total := 0
	for _, k := range r.Khatas {
		total += k.Updated
	}
	return total
}

// SkippedKhatas counts Khatas that finished with no update
func (r *RunReport) SkippedKhatas() int {
	count := 0
	for _, k := range r.Khatas {
		if k.Updated == 0 {
			count++
		}
	}
	return count
}

// Duration returns the wall time of the run, or zero while it is running
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Lines returns the log messages in order
func (r *RunReport) Lines() []string {
	lines := make([]string, len(r.Log))
	for i, entry := range r.Log {
		lines[i] = entry.Message
	}
	return lines
}
