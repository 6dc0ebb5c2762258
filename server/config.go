package server

import (
	"runtime"
	"time"

	"github.com/xiaoyuanzhu-com/omnitool/camera"
	"github.com/xiaoyuanzhu-com/omnitool/config"
	"github.com/xiaoyuanzhu-com/omnitool/db"
	imagetool "github.com/xiaoyuanzhu-com/omnitool/tools/image"
	"github.com/xiaoyuanzhu-com/omnitool/tools/scan"
	"github.com/xiaoyuanzhu-com/omnitool/vendors"
)

// Config holds server configuration
type Config struct {
	// Server infrastructure (immutable, requires restart)
	Port int
	Host string
	Env  string // "development" or "production"

	DatabasePath string
	DBLogQueries bool

	// ConfigFile is watched for hot-reloadable settings (log level).
	ConfigFile string

	// Scanner
	ScannerFPS         int
	ScanRegionSize     int
	AspectRatio        float64
	RememberLastCamera bool
	CameraInput        bool
	FileInput          bool
	DuplicateWindow    time.Duration
	ReleaseTimeout     time.Duration
	Haptic             time.Duration

	OCRLanguage string

	PDFPageWidth float64
	PDFFileName  string

	ImageMaxWidth     int
	ImageMaxHeight    int
	ImageTargetSizeMB float64
	ImageFormat       string
	ImageQuality      float64
	ImageWorkers      int

	ArtifactTTL time.Duration
	// OperationRetention is how long finished operations stay queryable.
	OperationRetention time.Duration
}

// FromAppConfig flattens the loaded application config.
func FromAppConfig(c *config.Config) *Config {
	return &Config{
		Port:               c.Port,
		Host:               c.Host,
		Env:                c.Env,
		DatabasePath:       c.DatabasePath,
		DBLogQueries:       c.DBLogQueries,
		ConfigFile:         c.ConfigFile,
		ScannerFPS:         c.Scanner.FPS,
		ScanRegionSize:     c.Scanner.ScanRegionSize,
		AspectRatio:        c.Scanner.AspectRatio,
		RememberLastCamera: c.Scanner.RememberLastCamera,
		CameraInput:        c.Scanner.CameraInput,
		FileInput:          c.Scanner.FileInput,
		DuplicateWindow:    c.Scanner.DuplicateWindow.Duration,
		ReleaseTimeout:     c.Scanner.ReleaseTimeout.Duration,
		Haptic:             time.Duration(c.Scanner.HapticMillis) * time.Millisecond,
		OCRLanguage:        c.OCR.Language,
		PDFPageWidth:       c.PDF.PageWidth,
		PDFFileName:        c.PDF.FileName,
		ImageMaxWidth:      c.Image.MaxWidth,
		ImageMaxHeight:     c.Image.MaxHeight,
		ImageTargetSizeMB:  c.Image.TargetSizeMB,
		ImageFormat:        c.Image.Format,
		ImageQuality:       c.Image.InitialQuality,
		ImageWorkers:       max(1, runtime.NumCPU()/2),
		ArtifactTTL:        c.ArtifactTTL.Duration,
		OperationRetention: 10 * time.Minute,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

// ToDBConfig converts server config to database config
func (c *Config) ToDBConfig() db.Config {
	return db.Config{
		Path:            c.DatabasePath,
		MaxOpenConns:    1,
		ConnMaxLifetime: 0, // Never expire
		LogQueries:      c.DBLogQueries,
	}
}

// ToScannerSettings is what the camera surface is configured with.
func (c *Config) ToScannerSettings() vendors.ScannerSettings {
	return vendors.ScannerSettings{
		FPS:                c.ScannerFPS,
		ScanRegionSize:     c.ScanRegionSize,
		AspectRatio:        c.AspectRatio,
		RememberLastCamera: c.RememberLastCamera,
		SupportedInputs:    vendors.SupportedInputs{Camera: c.CameraInput, File: c.FileInput},
	}
}

func (c *Config) ToCameraSettings() camera.Settings {
	return camera.Settings{
		FPS:            c.ScannerFPS,
		ScanRegionSize: c.ScanRegionSize,
		AspectRatio:    c.AspectRatio,
	}
}

func (c *Config) ToScanConfig() scan.Config {
	return scan.Config{
		FPS:             c.ScannerFPS,
		ScanRegionSize:  c.ScanRegionSize,
		DuplicateWindow: c.DuplicateWindow,
		Haptic:          c.Haptic,
	}
}

func (c *Config) ToImageDefaults() imagetool.Options {
	return imagetool.Options{
		MaxWidth:        c.ImageMaxWidth,
		MaxHeight:       c.ImageMaxHeight,
		TargetSizeBytes: int64(c.ImageTargetSizeMB * 1024 * 1024),
		Format:          c.ImageFormat,
	}
}
