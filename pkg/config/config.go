package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/tokenash/pkg/chart"
	"github.com/pario-ai/tokenash/pkg/history"
	"github.com/pario-ai/tokenash/pkg/models"
	"github.com/pario-ai/tokenash/pkg/readme"
)

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "config.yaml"

// Config holds all TokenAsh configuration.
type Config struct {
	Env       string           `yaml:"env"`
	LogLevel  string           `yaml:"log_level"`
	DataDir   string           `yaml:"data_dir"`
	ChartsDir string           `yaml:"charts_dir"`
	Storage   StorageConfig    `yaml:"storage"`
	Providers []ProviderConfig `yaml:"providers"`
	Fetch     FetchConfig      `yaml:"fetch"`
	Chart     ChartConfig      `yaml:"chart"`
	GitHub    GitHubConfig     `yaml:"github"`
	Budget    BudgetConfig     `yaml:"budget"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// ProviderConfig enables a usage provider. An empty APIKey falls back to the
// provider's environment variable.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	URL     string `yaml:"url"`
}

// FetchConfig controls provider requests.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	BackfillDays int           `yaml:"backfill_days"`
	Parallel     bool          `yaml:"parallel"`
}

// ChartConfig controls chart synthesis and rendering.
type ChartConfig struct {
	Title         string        `yaml:"title"`
	Days          int           `yaml:"days"`
	Width         int           `yaml:"width"`
	Height        int           `yaml:"height"`
	URL           string        `yaml:"url"`
	DownloadImage bool          `yaml:"download_image"`
	ImageFile     string        `yaml:"image_file"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// GitHubConfig controls splicing the snippet into a profile README.
type GitHubConfig struct {
	ProfileRepo  string `yaml:"profile_repo"`
	ReadmePath   string `yaml:"readme_path"`
	SectionStart string `yaml:"section_start"`
	SectionEnd   string `yaml:"section_end"`
}

// BudgetConfig lists token budgets checked after each run.
type BudgetConfig struct {
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// MetricsConfig controls the Prometheus textfile output.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

// Default returns a Config with sensible defaults. Both providers are
// enabled and pick up credentials from the environment.
func Default() *Config {
	return &Config{
		Env:       "local",
		LogLevel:  "info",
		DataDir:   "data",
		ChartsDir: "charts",
		Storage:   StorageConfig{Driver: history.DriverJSON},
		Providers: []ProviderConfig{
			{Name: "openai", Enabled: true},
			{Name: "anthropic", Enabled: true},
		},
		Fetch: FetchConfig{
			Timeout:  30 * time.Second,
			Parallel: true,
		},
		Chart: ChartConfig{
			Title:     chart.DefaultTitle,
			Days:      30,
			Width:     800,
			Height:    400,
			URL:       chart.DefaultURL,
			ImageFile: "token_usage.png",
			CacheTTL:  24 * time.Hour,
		},
		GitHub: GitHubConfig{
			ReadmePath:   "README.md",
			SectionStart: readme.DefaultStartMarker,
			SectionEnd:   readme.DefaultEndMarker,
		},
	}
}

// Load reads a YAML config file and expands environment variables. Values
// from a .env file next to the config (or in the working directory) are
// loaded first without overriding the real environment.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns defaults when path does not
// exist, so the tool can run from environment credentials alone.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		loadDotEnv(path)
		return Default(), nil
	}
	return Load(path)
}

func loadDotEnv(configPath string) {
	for _, p := range []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// Validate rejects values no run could use.
func (c *Config) Validate() error {
	if c.Chart.Days < 0 {
		return fmt.Errorf("chart.days must not be negative, got %d", c.Chart.Days)
	}
	if c.Fetch.BackfillDays < 0 {
		return fmt.Errorf("fetch.backfill_days must not be negative, got %d", c.Fetch.BackfillDays)
	}
	switch c.Storage.Driver {
	case "", history.DriverJSON, history.DriverSQLite:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", history.DriverJSON, history.DriverSQLite, c.Storage.Driver)
	}
	for _, p := range c.Budget.Policies {
		if p.Period != models.BudgetDaily && p.Period != models.BudgetMonthly {
			return fmt.Errorf("budget policy for %q: unknown period %q", p.Provider, p.Period)
		}
	}
	return nil
}

// StoragePath returns the ledger location for the configured driver.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Driver == history.DriverSQLite {
		return filepath.Join(c.DataDir, "usage.db")
	}
	return filepath.Join(c.DataDir, "usage.json")
}

// CachePath returns the rendered-chart cache database location.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "chart_cache.db")
}

// MarkdownPath returns where the generated snippet is written.
func (c *Config) MarkdownPath() string {
	return filepath.Join(c.ChartsDir, "token_usage.md")
}

// ImagePath returns where a downloaded chart image is written.
func (c *Config) ImagePath() string {
	return filepath.Join(c.ChartsDir, c.Chart.ImageFile)
}
