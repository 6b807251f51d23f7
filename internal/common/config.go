package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Portal      PortalConfig   `toml:"portal"`
	Timeouts    TimeoutsConfig `toml:"timeouts"`
	Browser     BrowserConfig  `toml:"browser"`
	Scan        ScanConfig     `toml:"scan"`
	Audit       AuditConfig    `toml:"audit"`
	License     LicenseConfig  `toml:"license"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Uploads     UploadsConfig  `toml:"uploads"`
	Metrics     MetricsConfig  `toml:"metrics"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

// PortalConfig describes the remote eCrop application
type PortalConfig struct {
	URL           string `toml:"url" validate:"required,url"`
	MenuLinkText  string `toml:"menu_link_text" validate:"required"` // Transaction menu entry leading to the cultivator page
	OwnerOption   string `toml:"owner_option" validate:"required"`   // Value of the "Owner" option in the row type selector
	LoginSettle   string `toml:"login_settle"`                       // Wait after the login page loads (default: "10s")
	VillageSettle string `toml:"village_settle"`                     // Wait after the village is selected (default: "5s")
}

// TimeoutsConfig holds the bounded waits used by the engine. Fast existence checks
// and slow state transitions use distinct values.
type TimeoutsConfig struct {
	RowDiscovery string `toml:"row_discovery"` // Existence check for the next survey row (default: "3s")
	FieldRead    string `toml:"field_read"`    // Reading row fields (default: "5s")
	Transition   string `toml:"transition"`    // Occupant extent, submit and confirm controls (default: "10s")
	SearchResult string `toml:"search_result"` // Soft check for rows after a Khata search (default: "10s")
	Navigation   string `toml:"navigation"`    // Login and menu navigation (default: "20s")
	Settle       string `toml:"settle"`        // Re-render delay after a confirmed update (default: "1.5s")
}

type BrowserConfig struct {
	Headless          bool   `toml:"headless"`
	NoSandbox         bool   `toml:"no_sandbox"`
	DisableDevShm     bool   `toml:"disable_dev_shm"`
	ExecPath          string `toml:"exec_path"` // Optional Chrome binary path
	UserAgent         string `toml:"user_agent"`
	WindowWidth       int    `toml:"window_width" validate:"gte=0"`
	WindowHeight      int    `toml:"window_height" validate:"gte=0"`
	StartupTimeout    string `toml:"startup_timeout"`     // Browser launch check (default: "30s")
	PageLoadTimeout   string `toml:"page_load_timeout"`   // Navigate to a URL (default: "60s")
	ActionTimeout     string `toml:"action_timeout"`      // Upper bound for a single UI action (default: "10s")
	ActionInterval    string `toml:"action_interval"`     // Minimum spacing between UI actions (default: "0s" = unpaced)
	AutoAcceptDialogs bool   `toml:"auto_accept_dialogs"` // Accept native alert/confirm dialogs
}

// ScanConfig controls the row scan restart policy
type ScanConfig struct {
	// MaxRepeatedUpdates bounds how many times in a row the same survey row may be
	// updated without leaving the pending list. 0 trusts the portal to always make
	// forward progress and restarts indefinitely.
	MaxRepeatedUpdates int `toml:"max_repeated_updates" validate:"gte=0"`
}

type AuditConfig struct {
	Dir               string `toml:"dir" validate:"required"`
	ReplacementsFile  string `toml:"replacements_file" validate:"required"`
	InvalidMobileFile string `toml:"invalid_mobile_file" validate:"required"`
	SkippedKhataFile  string `toml:"skipped_khata_file" validate:"required"`
	ScreenshotFile    string `toml:"screenshot_file" validate:"required"`
}

type LicenseConfig struct {
	Enabled  bool   `toml:"enabled"`
	SheetURL string `toml:"sheet_url" validate:"omitempty,url"`
	Timeout  string `toml:"timeout"` // HTTP timeout for the published sheet (default: "30s")
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

type UploadsConfig struct {
	Dir       string `toml:"dir" validate:"required"`
	MaxSizeMB int    `toml:"max_size_mb" validate:"gt=0"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Portal: PortalConfig{
			URL:           "https://karshak.ap.gov.in/ecrop/",
			MenuLinkText:  "Add/Update Cultivator",
			OwnerOption:   "1",
			LoginSettle:   "10s",
			VillageSettle: "5s",
		},
		Timeouts: TimeoutsConfig{
			RowDiscovery: "3s",
			FieldRead:    "5s",
			Transition:   "10s",
			SearchResult: "10s",
			Navigation:   "20s",
			Settle:       "1.5s",
		},
		Browser: BrowserConfig{
			Headless:          false, // Operators usually watch the session and solve the login captcha
			NoSandbox:         true,
			DisableDevShm:     true,
			WindowWidth:       1920,
			WindowHeight:      1080,
			StartupTimeout:    "30s",
			PageLoadTimeout:   "60s",
			ActionTimeout:     "10s",
			ActionInterval:    "0s",
			AutoAcceptDialogs: true,
		},
		Scan: ScanConfig{
			MaxRepeatedUpdates: 3,
		},
		Audit: AuditConfig{
			Dir:               ".",
			ReplacementsFile:  "mobile_replacements.txt",
			InvalidMobileFile: "invalid_mobile_log.txt",
			SkippedKhataFile:  "skipped_khatas.txt",
			ScreenshotFile:    "fatal_error.png",
		},
		License: LicenseConfig{
			Enabled: false,
			Timeout: "30s",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Uploads: UploadsConfig{
			Dir:       "./uploads",
			MaxSizeMB: 8,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ECROP_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("ECROP_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ECROP_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Portal configuration
	if url := os.Getenv("ECROP_PORTAL_URL"); url != "" {
		config.Portal.URL = url
	}

	// Browser configuration
	if headless := os.Getenv("ECROP_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if execPath := os.Getenv("ECROP_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}
	if interval := os.Getenv("ECROP_BROWSER_ACTION_INTERVAL"); interval != "" {
		config.Browser.ActionInterval = interval
	}

	// Scan configuration
	if maxRepeated := os.Getenv("ECROP_SCAN_MAX_REPEATED_UPDATES"); maxRepeated != "" {
		if m, err := strconv.Atoi(maxRepeated); err == nil {
			config.Scan.MaxRepeatedUpdates = m
		}
	}

	// Audit configuration
	if dir := os.Getenv("ECROP_AUDIT_DIR"); dir != "" {
		config.Audit.Dir = dir
	}

	// License configuration
	if enabled := os.Getenv("ECROP_LICENSE_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.License.Enabled = e
		}
	}
	if sheetURL := os.Getenv("ECROP_LICENSE_SHEET_URL"); sheetURL != "" {
		config.License.SheetURL = sheetURL
	}

	// Storage configuration
	if badgerPath := os.Getenv("ECROP_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("ECROP_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ECROP_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Uploads configuration
	if dir := os.Getenv("ECROP_UPLOADS_DIR"); dir != "" {
		config.Uploads.Dir = dir
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct tags and every duration string
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.License.Enabled && c.License.SheetURL == "" {
		return fmt.Errorf("invalid configuration: license.sheet_url is required when license.enabled is true")
	}

	durations := map[string]string{
		"portal.login_settle":       c.Portal.LoginSettle,
		"portal.village_settle":     c.Portal.VillageSettle,
		"timeouts.row_discovery":    c.Timeouts.RowDiscovery,
		"timeouts.field_read":       c.Timeouts.FieldRead,
		"timeouts.transition":       c.Timeouts.Transition,
		"timeouts.search_result":    c.Timeouts.SearchResult,
		"timeouts.navigation":       c.Timeouts.Navigation,
		"timeouts.settle":           c.Timeouts.Settle,
		"browser.startup_timeout":   c.Browser.StartupTimeout,
		"browser.page_load_timeout": c.Browser.PageLoadTimeout,
		"browser.action_timeout":    c.Browser.ActionTimeout,
		"browser.action_interval":   c.Browser.ActionInterval,
		"license.timeout":           c.License.Timeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid configuration: %s must not be negative", key)
		}
	}

	return nil
}

// ParseDurationOr parses a duration string, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
