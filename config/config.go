package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int    `toml:"port"`
	Host string `toml:"host"`
	Env  string `toml:"env"` // "development" or "production"

	// Data directory
	DataDir string `toml:"data_dir"`

	// Database
	DatabasePath string `toml:"database_path"`
	DBLogQueries bool   `toml:"db_log_queries"`

	// Logging (hot-reloadable from the config file)
	LogLevel string `toml:"log_level"`

	Scanner ScannerConfig `toml:"scanner"`
	OCR     OCRConfig     `toml:"ocr"`
	PDF     PDFConfig     `toml:"pdf"`
	Image   ImageConfig   `toml:"image"`

	// ArtifactTTL bounds how long an unclaimed download stays around.
	ArtifactTTL Duration `toml:"artifact_ttl"`

	// ConfigFile is the TOML file this config was layered from (may not exist).
	ConfigFile string `toml:"-"`
}

// ScannerConfig mirrors the decoder settings handed to the camera surface.
type ScannerConfig struct {
	FPS                int      `toml:"fps"`
	ScanRegionSize     int      `toml:"scan_region_size"`
	AspectRatio        float64  `toml:"aspect_ratio"`
	RememberLastCamera bool     `toml:"remember_last_camera"`
	CameraInput        bool     `toml:"camera_input"`
	FileInput          bool     `toml:"file_input"`
	DuplicateWindow    Duration `toml:"duplicate_window"`
	ReleaseTimeout     Duration `toml:"release_timeout"`
	HapticMillis       int      `toml:"haptic_ms"`
}

type OCRConfig struct {
	Language string `toml:"language"`
}

type PDFConfig struct {
	// PageWidth in PDF points; page height follows each image's aspect ratio.
	PageWidth float64 `toml:"page_width"`
	FileName  string  `toml:"file_name"`
}

type ImageConfig struct {
	MaxWidth       int     `toml:"max_width"`
	MaxHeight      int     `toml:"max_height"`
	TargetSizeMB   float64 `toml:"target_size_mb"`
	Format         string  `toml:"format"`
	InitialQuality float64 `toml:"initial_quality"`
}

// Duration decodes TOML strings like "2s" or "150ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var (
	cfg  *Config
	once sync.Once
)

// Get returns the global configuration (singleton)
func Get() *Config {
	once.Do(func() {
		c, err := Load()
		if err != nil {
			// Fall back to defaults + env; the file error is reported by the caller
			// that owns logging (server startup re-runs Load).
			c = Defaults()
			applyEnv(c)
		}
		cfg = c
	})
	return cfg
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	dataDir := "./data"
	return &Config{
		Port:         12480,
		Host:         "127.0.0.1",
		Env:          "development",
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dataDir, "omnitool.sqlite"),
		LogLevel:     "info",
		Scanner: ScannerConfig{
			FPS:                10,
			ScanRegionSize:     250,
			AspectRatio:        1.0,
			RememberLastCamera: true,
			CameraInput:        true,
			FileInput:          true,
			DuplicateWindow:    Duration{2 * time.Second},
			ReleaseTimeout:     Duration{3 * time.Second},
			HapticMillis:       100,
		},
		OCR: OCRConfig{Language: "eng"},
		PDF: PDFConfig{
			PageWidth: 595.28, // A4 width
			FileName:  "compiled-document.pdf",
		},
		Image: ImageConfig{
			MaxWidth:       1920,
			MaxHeight:      1080,
			TargetSizeMB:   1,
			Format:         "image/webp",
			InitialQuality: 0.8,
		},
		ArtifactTTL: Duration{10 * time.Minute},
	}
}

// Load layers defaults, the optional TOML file and environment variables,
// in that order of increasing precedence.
func Load() (*Config, error) {
	c := Defaults()

	// Data dir from env decides where the default config file lives.
	if v := os.Getenv("OMNITOOL_DATA_DIR"); v != "" {
		c.DataDir = v
		c.DatabasePath = filepath.Join(v, "omnitool.sqlite")
	}
	c.ConfigFile = getEnv("OMNITOOL_CONFIG", filepath.Join(c.DataDir, "omnitool.toml"))

	if err := c.loadFile(c.ConfigFile); err != nil {
		return nil, err
	}
	applyEnv(c)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFile decodes path over c. A missing file is not an error.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dataDir := c.DataDir
	dbPath := c.DatabasePath
	if _, err := toml.Decode(string(data), c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	// A data_dir override without an explicit database_path moves the database along.
	if c.DataDir != dataDir && c.DatabasePath == dbPath {
		c.DatabasePath = filepath.Join(c.DataDir, "omnitool.sqlite")
	}
	return nil
}

func applyEnv(c *Config) {
	c.Port = getEnvInt("PORT", c.Port)
	c.Host = getEnv("HOST", c.Host)
	c.Env = getEnv("ENV", c.Env)
	c.DatabasePath = getEnv("OMNITOOL_DB_PATH", c.DatabasePath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.OCR.Language = getEnv("OCR_LANGUAGE", c.OCR.Language)
	c.Image.Format = getEnv("IMAGE_FORMAT", c.Image.Format)
	if v := os.Getenv("DB_LOG_QUERIES"); v != "" {
		c.DBLogQueries = v == "1"
	}
}

// Validate rejects values the components cannot work with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Scanner.FPS <= 0 {
		return fmt.Errorf("scanner fps must be positive, got %d", c.Scanner.FPS)
	}
	if c.PDF.PageWidth <= 0 {
		return fmt.Errorf("pdf page width must be positive, got %v", c.PDF.PageWidth)
	}
	if c.Image.InitialQuality <= 0 || c.Image.InitialQuality > 1 {
		return fmt.Errorf("image initial quality must be in (0,1], got %v", c.Image.InitialQuality)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
