/**
 * Configuration for the TARA digitization worker and CLI
 *
 * Loads configuration from environment variables, then overlays an optional
 * YAML file (TARA_CONFIG, else $XDG_CONFIG_HOME/tara/config.yaml).
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/belfastkeyboard/TARA/internal/layout"
)

// AppName names the XDG subdirectories used by TARA
const AppName = "tara"

// ErrConfigNotFound is returned when an explicitly named config file does not exist
var ErrConfigNotFound = errors.New("configuration file not found")

// LayoutConfig holds the cropper's tuning thresholds. Its fields mirror
// layout.Thresholds so the two convert directly.
type LayoutConfig struct {
	HeaderMargin    float64 `yaml:"header_margin"`
	HeaderMaxAspect float64 `yaml:"header_max_aspect"`
	FooterMargin    float64 `yaml:"footer_margin"`
	FooterMinAspect float64 `yaml:"footer_min_aspect"`
	NoiseMinAspect  float64 `yaml:"noise_min_aspect"`
	NoiseMaxSize    int     `yaml:"noise_max_size"`
	RegionMargin    int     `yaml:"region_margin"`
	DilateKernel    int     `yaml:"dilate_kernel"`
	ResizeWidth     int     `yaml:"resize_width"`

	// PageNumberAcceptsDigits lets the footer check accept numeric text.
	PageNumberAcceptsDigits bool `yaml:"page_number_accepts_digits"`
}

// Config holds worker configuration
type Config struct {
	// Dictionary set for the corrector
	DictionaryDir   string `yaml:"dictionary_dir"`
	MaxEditDistance int    `yaml:"max_edit_distance"`

	// Segmenter / rasterizer
	SegmentWorkers int           `yaml:"segment_workers"`
	RasterTimeout  time.Duration `yaml:"raster_timeout"`
	RasterDPI      int           `yaml:"raster_dpi"`
	PdftoppmPath   string        `yaml:"pdftoppm_path"`

	// Tesseract configuration
	OCRLanguages []string `yaml:"ocr_languages"`
	OCRPSM       int      `yaml:"ocr_psm"`

	// Layout cropper
	Layout LayoutConfig `yaml:"layout"`

	// Redis / queue configuration
	RedisURL          string        `yaml:"redis_url"`
	QueueName         string        `yaml:"queue_name"`
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`

	// Results store
	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`

	LogLevel string `yaml:"log_level"`
}

// DefaultLayout returns the cropper's stock thresholds
func DefaultLayout() LayoutConfig {
	return LayoutConfig(layout.DefaultThresholds())
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		DictionaryDir:     DefaultDictionaryDir(),
		MaxEditDistance:   2,
		SegmentWorkers:    4,
		RasterTimeout:     20 * time.Second,
		RasterDPI:         200,
		PdftoppmPath:      "pdftoppm",
		OCRLanguages:      []string{"eng"},
		OCRPSM:            3,
		Layout:            DefaultLayout(),
		RedisURL:          "redis://localhost:6379",
		QueueName:         "tara:digitize",
		WorkerConcurrency: 2,
		ProcessingTimeout: 30 * time.Minute,
		DatabaseDriver:    "sqlite",
		DatabaseURL:       filepath.Join(xdg.DataHome, AppName, "tara.db"),
		LogLevel:          "info",
	}
}

// DefaultDictionaryDir is $XDG_DATA_HOME/tara/dictionaries
func DefaultDictionaryDir() string {
	return filepath.Join(xdg.DataHome, AppName, "dictionaries")
}

// DefaultConfigPath is $XDG_CONFIG_HOME/tara/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// LoadConfig loads configuration from environment variables and the YAML overlay
func LoadConfig() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	path := os.Getenv("TARA_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	if err := cfg.LoadFile(path); err != nil {
		if !errors.Is(err, ErrConfigNotFound) || explicit {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c; keys absent from the file keep their value
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigNotFound
		}
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DictionaryDir = getEnvOrDefault("DICTIONARY_DIR", c.DictionaryDir)
	c.MaxEditDistance = getEnvAsIntOrDefault("MAX_EDIT_DISTANCE", c.MaxEditDistance)
	c.SegmentWorkers = getEnvAsIntOrDefault("SEGMENT_WORKERS", c.SegmentWorkers)
	c.RasterTimeout = getEnvAsDurationOrDefault("RASTER_TIMEOUT", c.RasterTimeout)
	c.RasterDPI = getEnvAsIntOrDefault("RASTER_DPI", c.RasterDPI)
	c.PdftoppmPath = getEnvOrDefault("PDFTOPPM_PATH", c.PdftoppmPath)
	if langs := os.Getenv("OCR_LANGUAGES"); langs != "" {
		c.OCRLanguages = splitList(langs)
	}
	c.OCRPSM = getEnvAsIntOrDefault("OCR_PSM", c.OCRPSM)
	c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)
	c.QueueName = getEnvOrDefault("QUEUE_NAME", c.QueueName)
	c.WorkerConcurrency = getEnvAsIntOrDefault("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.ProcessingTimeout = getEnvAsDurationOrDefault("PROCESSING_TIMEOUT", c.ProcessingTimeout)
	c.DatabaseDriver = getEnvOrDefault("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.DictionaryDir == "" {
		return fmt.Errorf("DICTIONARY_DIR is required")
	}

	if c.SegmentWorkers < 1 || c.SegmentWorkers > 64 {
		return fmt.Errorf("SEGMENT_WORKERS must be between 1 and 64, got %d", c.SegmentWorkers)
	}

	if c.RasterTimeout <= 0 {
		return fmt.Errorf("RASTER_TIMEOUT must be positive, got %v", c.RasterTimeout)
	}

	if c.RasterDPI < 50 || c.RasterDPI > 1200 {
		return fmt.Errorf("RASTER_DPI must be between 50 and 1200, got %d", c.RasterDPI)
	}

	if c.OCRPSM < 0 || c.OCRPSM > 13 {
		return fmt.Errorf("OCR_PSM must be between 0 and 13, got %d", c.OCRPSM)
	}

	if len(c.OCRLanguages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES is required")
	}

	if c.MaxEditDistance < 0 || c.MaxEditDistance > 3 {
		return fmt.Errorf("MAX_EDIT_DISTANCE must be between 0 and 3, got %d", c.MaxEditDistance)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	switch c.DatabaseDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}

	return c.Layout.Validate()
}

// Validate checks the cropper thresholds
func (l LayoutConfig) Validate() error {
	ratios := []struct {
		name  string
		value float64
	}{
		{"header_margin", l.HeaderMargin},
		{"footer_margin", l.FooterMargin},
	}
	for _, r := range ratios {
		if r.value <= 0 || r.value > 1 {
			return fmt.Errorf("layout.%s must be in (0,1], got %v", r.name, r.value)
		}
	}

	if l.HeaderMaxAspect <= 0 || l.FooterMinAspect <= 0 || l.NoiseMinAspect <= 0 {
		return fmt.Errorf("layout aspect thresholds must be positive")
	}

	if l.NoiseMaxSize < 0 || l.RegionMargin < 0 {
		return fmt.Errorf("layout.noise_max_size and layout.region_margin must not be negative")
	}

	if l.DilateKernel < 1 {
		return fmt.Errorf("layout.dilate_kernel must be at least 1, got %d", l.DilateKernel)
	}

	if l.ResizeWidth < 1 {
		return fmt.Errorf("layout.resize_width must be at least 1, got %d", l.ResizeWidth)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("20s") or bare milliseconds
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
