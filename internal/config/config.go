package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings holds all sellflow configuration.
type Settings struct {
	// External collaborators
	SpreadsheetURL string `yaml:"spreadsheet_url"`
	ImageSearchURL string `yaml:"image_search_url"`

	// Sourcing economics
	ExchangeRate          float64 `yaml:"exchange_rate"`           // source currency units per marketplace currency unit
	ProfitThreshold       float64 `yaml:"profit_threshold"`        // minimum acceptable margin, percent
	MonthlySalesThreshold int     `yaml:"monthly_sales_threshold"` // minimum estimated monthly sales
	SalesThreshold3Day    int     `yaml:"sales_threshold_3day"`    // minimum trailing 3-day sales count

	// Pricing
	Pricing PricingSettings `yaml:"pricing"`

	// Engine tuning
	Engine EngineSettings `yaml:"engine"`

	// Browser surface
	Browser BrowserSettings `yaml:"browser"`

	// Directories
	Dirs DirSettings `yaml:"dirs"`
}

// PricingSettings tunes the daily price adjustment pass.
type PricingSettings struct {
	StepDown      int     `yaml:"step_down"`       // amount removed per adjustment
	MinMarginRate float64 `yaml:"min_margin_rate"` // floor = cost * (1 + min_margin_rate)
	DailySchedule string  `yaml:"daily_schedule"`  // cron spec for the daily pass
}

// EngineSettings tunes the automation engine itself.
// Durations are strings ("2s", "500ms") parsed on access.
type EngineSettings struct {
	Platform            string   `yaml:"platform"` // darwin, linux, windows; empty = runtime.GOOS
	CoordinateProfile   string   `yaml:"coordinate_profile"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	MaxAttempts         int      `yaml:"max_attempts"`
	Backoff             []string `yaml:"backoff"`
	StepTimeout         string   `yaml:"step_timeout"`
	TypeDelay           string   `yaml:"type_delay"`
	ResearchOpsPerHour  int      `yaml:"research_ops_per_hour"`
	SourcingWorkers     int      `yaml:"sourcing_workers"`
}

// BrowserSettings configures the Chromium surface the workflow drives.
type BrowserSettings struct {
	DebuggerURL    string `yaml:"debugger_url"` // attach to a running browser; empty launches one
	Headless       bool   `yaml:"headless"`
	StartURL       string `yaml:"start_url"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
}

// DirSettings locates on-disk artifacts.
type DirSettings struct {
	CoordinateSets string `yaml:"coordinate_sets"`
	Logs           string `yaml:"logs"`
	Screenshots    string `yaml:"screenshots"`
	Database       string `yaml:"database"`
}

// Default returns the settings used when no file is present.
func Default() Settings {
	return Settings{
		ExchangeRate:          21.0,
		ProfitThreshold:       30,
		MonthlySalesThreshold: 30,
		SalesThreshold3Day:    3,
		Pricing: PricingSettings{
			StepDown:      100,
			MinMarginRate: 0.10,
			DailySchedule: "0 9 * * *",
		},
		Engine: EngineSettings{
			CoordinateProfile:   "mercari",
			ConfidenceThreshold: 0.8,
			MaxAttempts:         3,
			Backoff:             []string{"2s", "5s", "10s"},
			StepTimeout:         "60s",
			TypeDelay:           "40ms",
			ResearchOpsPerHour:  300,
			SourcingWorkers:     4,
		},
		Browser: BrowserSettings{
			StartURL:       "https://jp.mercari.com/",
			ViewportWidth:  1920,
			ViewportHeight: 1080,
		},
		Dirs: DirSettings{
			CoordinateSets: "config/coordinate_sets",
			Logs:           "logs",
			Screenshots:    "logs/screenshots",
			Database:       "data",
		},
	}
}

// Load reads settings from path, falling back to defaults for absent fields,
// then applies environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.applyEnv()
			return s, s.validate()
		}
		return s, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}

	s.applyEnv()
	return s, s.validate()
}

// Save writes settings to path, creating parent directories.
func (s Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// StepTimeout returns the parsed per-step timeout.
func (e EngineSettings) StepTimeoutDuration() time.Duration {
	return parseDuration(e.StepTimeout, 60*time.Second)
}

// TypeDelayDuration returns the parsed per-character typing delay.
func (e EngineSettings) TypeDelayDuration() time.Duration {
	return parseDuration(e.TypeDelay, 40*time.Millisecond)
}

// BackoffSchedule returns the parsed retry backoff schedule.
// Attempts beyond the schedule length reuse the final entry.
func (e EngineSettings) BackoffSchedule() []time.Duration {
	if len(e.Backoff) == 0 {
		return []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}
	}
	out := make([]time.Duration, 0, len(e.Backoff))
	for _, raw := range e.Backoff {
		out = append(out, parseDuration(raw, 2*time.Second))
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// applyEnv overlays environment variables on top of file values.
// A .env file in the working directory is honored when present.
func (s *Settings) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("SELLFLOW_SPREADSHEET_URL"); v != "" {
		s.SpreadsheetURL = v
	}
	if v := os.Getenv("SELLFLOW_IMAGE_SEARCH_URL"); v != "" {
		s.ImageSearchURL = v
	}
	if v := os.Getenv("SELLFLOW_EXCHANGE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.ExchangeRate = f
		}
	}
	if v := os.Getenv("SELLFLOW_PROFIT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.ProfitThreshold = f
		}
	}
	if v := os.Getenv("SELLFLOW_OPS_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Engine.ResearchOpsPerHour = n
		}
	}
}

func (s Settings) validate() error {
	if s.ExchangeRate <= 0 {
		return fmt.Errorf("exchange_rate must be positive, got %v", s.ExchangeRate)
	}
	if s.Engine.ConfidenceThreshold <= 0 || s.Engine.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in (0,1], got %v", s.Engine.ConfidenceThreshold)
	}
	if s.Engine.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", s.Engine.MaxAttempts)
	}
	if s.Engine.ResearchOpsPerHour < 1 {
		return fmt.Errorf("research_ops_per_hour must be at least 1, got %d", s.Engine.ResearchOpsPerHour)
	}
	return nil
}
