package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/interfaces"
)

// FileSink appends audit records to three plain text files, one line per record.
// Files are opened per write so operators can rotate or delete them between runs.
type FileSink struct {
	mu                sync.Mutex
	replacementsPath  string
	invalidMobilePath string
	skippedKhataPath  string
	logger            arbor.ILogger
}

var _ interfaces.AuditSink = (*FileSink)(nil)

// NewFileSink creates the audit directory and resolves the three file paths
func NewFileSink(config common.AuditConfig, logger arbor.ILogger) (*FileSink, error) {
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory %s: %w", config.Dir, err)
	}
	return &FileSink{
		replacementsPath:  filepath.Join(config.Dir, config.ReplacementsFile),
		invalidMobilePath: filepath.Join(config.Dir, config.InvalidMobileFile),
		skippedKhataPath:  filepath.Join(config.Dir, config.SkippedKhataFile),
		logger:            logger,
	}, nil
}

// RecordReplacement writes "<khata>, Row <i>, Replaced with: <mobile>"
func (s *FileSink) RecordReplacement(khata string, row int, mobile string) error {
	return s.append(s.replacementsPath, fmt.Sprintf("%s, Row %d, Replaced with: %s\n", khata, row, mobile))
}

// RecordInvalidMobile writes "<khata>, Row <i> - Invalid mobile: <mobile>"
func (s *FileSink) RecordInvalidMobile(khata string, row int, mobile string) error {
	return s.append(s.invalidMobilePath, fmt.Sprintf("%s, Row %d - Invalid mobile: %s\n", khata, row, mobile))
}

// RecordSkippedKhata writes "<khata> - <reason>"
func (s *FileSink) RecordSkippedKhata(khata string, reason string) error {
	return s.append(s.skippedKhataPath, fmt.Sprintf("%s - %s\n", khata, reason))
}

// Paths returns the three audit files in replacement, invalid mobile, skipped order
func (s *FileSink) Paths() []string {
	return []string{s.replacementsPath, s.invalidMobilePath, s.skippedKhataPath}
}

func (s *FileSink) append(path, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to write audit file %s: %w", path, err)
	}
	s.logger.Debug().Str("file", filepath.Base(path)).Str("record", line[:len(line)-1]).Msg("Audit record written")
	return nil
}
