package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Environment variables that override file values.
const (
	EnvUploadDir    = "GRAVITYEDITS_UPLOAD_DIR"
	EnvProjectsDir  = "GRAVITYEDITS_PROJECTS_DIR"
	EnvFallbackRoot = "GRAVITYEDITS_FALLBACK_ROOT"
	EnvFFmpeg       = "GRAVITYEDITS_FFMPEG"
	EnvExportDir    = "GRAVITYEDITS_EXPORT_DIR"
	EnvConcurrency  = "GRAVITYEDITS_CONCURRENCY"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	TempDir     string `yaml:"temp_dir"`
	ExportDir   string `yaml:"export_dir"`
	Concurrency int    `yaml:"concurrency"`

	// Media lookup
	Media MediaConfig `yaml:"media"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Output settings
	Render RenderConfig `yaml:"render"`

	// Overlay settings
	Overlays OverlayConfig `yaml:"overlays"`
}

type MediaConfig struct {
	UploadDir    string   `yaml:"upload_dir"`
	ProjectsDir  string   `yaml:"projects_dir"`
	FallbackRoot string   `yaml:"fallback_root"`
	Extensions   []string `yaml:"extensions"`
}

type FFmpegConfig struct {
	BinaryPath  string `yaml:"binary_path"`
	ProbePath   string `yaml:"probe_path"`
	Threads     int    `yaml:"threads"`
	Preset      string `yaml:"preset"`
	CRF         int    `yaml:"crf"`
	KillGraceMS int    `yaml:"kill_grace_ms"`
}

type RenderConfig struct {
	DefaultWidth  int     `yaml:"default_width"`
	DefaultHeight int     `yaml:"default_height"`
	FPS           float64 `yaml:"fps"`
	// URLPrefix is prepended to the output file name in completion events.
	URLPrefix string `yaml:"url_prefix"`
	// WriteSubtitles emits <output>.srt next to each render.
	WriteSubtitles bool `yaml:"write_subtitles"`
}

type OverlayConfig struct {
	FontDir     string `yaml:"font_dir"`
	MinFontSize int    `yaml:"min_font_size"`
}

// Load reads configuration from file or returns defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be at least 1"))
	}
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		errs = append(errs, errors.New("ffmpeg.crf must be between 0 and 51"))
	}
	if c.FFmpeg.Threads < 0 {
		errs = append(errs, errors.New("ffmpeg.threads cannot be negative"))
	}
	if c.Render.DefaultWidth <= 0 || c.Render.DefaultHeight <= 0 {
		errs = append(errs, errors.New("render default size must be positive"))
	}
	if c.Render.FPS <= 0 {
		errs = append(errs, errors.New("render.fps must be positive"))
	}
	if c.Overlays.MinFontSize < 1 {
		errs = append(errs, errors.New("overlays.min_font_size must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvUploadDir); v != "" {
		c.Media.UploadDir = v
	}
	if v := os.Getenv(EnvProjectsDir); v != "" {
		c.Media.ProjectsDir = v
	}
	if v := os.Getenv(EnvFallbackRoot); v != "" {
		c.Media.FallbackRoot = v
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		c.FFmpeg.BinaryPath = v
	}
	if v := os.Getenv(EnvExportDir); v != "" {
		c.ExportDir = v
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvConcurrency, err)
		}
		c.Concurrency = n
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		TempDir:     os.TempDir(),
		ExportDir:   "./exports",
		Concurrency: 4,
		Media: MediaConfig{
			UploadDir:   "./uploads",
			ProjectsDir: "./projects",
			Extensions:  []string{".mp4", ".mov", ".mkv"},
		},
		FFmpeg: FFmpegConfig{
			BinaryPath:  "ffmpeg",
			ProbePath:   "ffprobe",
			Threads:     0,
			Preset:      "medium",
			CRF:         23,
			KillGraceMS: 5000,
		},
		Render: RenderConfig{
			DefaultWidth:   1920,
			DefaultHeight:  1080,
			FPS:            30,
			URLPrefix:      "/exports/",
			WriteSubtitles: true,
		},
		Overlays: OverlayConfig{
			FontDir:     "./fonts",
			MinFontSize: 24,
		},
	}
}

// Default returns the built-in configuration without reading files or
// the environment.
func Default() *Config {
	return defaultConfig()
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".gravityedits", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
