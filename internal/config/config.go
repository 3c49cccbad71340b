// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/mediadesk/internal/audio"
	"github.com/maauso/mediadesk/internal/download"
	"github.com/maauso/mediadesk/internal/media"
	"github.com/maauso/mediadesk/internal/text"
)

// ErrInvalid is returned when a configuration value is out of range.
var ErrInvalid = errors.New("config: invalid value")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	MaxUploadMB    int      `env:"MAX_UPLOAD_MB, default=256" json:"max_upload_mb" validate:"min=1,max=4096"`

	// Directories
	OutputDir string `env:"OUTPUT_DIR, default=output" json:"output_dir" validate:"required"`
	TempDir   string `env:"TEMP_DIR, default=/tmp/mediadesk" json:"temp_dir" validate:"required"`

	// External tools
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path" validate:"required"`
	YTDLPPath   string `env:"YTDLP_PATH, default=yt-dlp" json:"ytdlp_path" validate:"required"`

	// Processing defaults
	ChunkMaxLength  int    `env:"CHUNK_MAX_LENGTH, default=2500" json:"chunk_max_length" validate:"min=100"`
	GapMs           int    `env:"GAP_MS, default=1000" json:"gap_ms" validate:"min=0,max=60000"`
	AudioBitrate    string `env:"AUDIO_BITRATE, default=192k" json:"audio_bitrate" validate:"endswith=k"`
	GIFResolution   string `env:"GIF_RESOLUTION, default=480p" json:"gif_resolution" validate:"oneof=240p 360p 480p 720p Original"`
	GIFFPS          int    `env:"GIF_FPS, default=10" json:"gif_fps" validate:"min=1,max=50"`
	AudioFormat     string `env:"AUDIO_FORMAT, default=mp3" json:"audio_format" validate:"oneof=mp3 wav flac aac m4a ogg"`
	AudioQuality    string `env:"AUDIO_QUALITY, default=192" json:"audio_quality" validate:"oneof=best 320 256 192 128 96 64"`
	DownloadRetries int    `env:"DOWNLOAD_RETRIES, default=3" json:"download_retries" validate:"min=0,max=10"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty" validate:"required_with=S3Bucket"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text pretty"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level" validate:"oneof=debug info warn warning error"`
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads and validates configuration from environment variables.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads configuration through l instead of the process environment.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every value against its allowed range.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, err.Error())
	}
	return nil
}

// CombineOpts returns the configured audio combine defaults.
func (c *Config) CombineOpts() audio.CombineOpts {
	opts := audio.DefaultCombineOpts()
	opts.GapMs = c.GapMs
	opts.Bitrate = c.AudioBitrate
	return opts
}

// GIFOpts returns the configured GIF conversion defaults.
func (c *Config) GIFOpts() media.GIFOpts {
	return media.GIFOpts{Resolution: c.GIFResolution, FPS: c.GIFFPS}
}

// DownloadOpts returns the configured download defaults.
func (c *Config) DownloadOpts() download.Options {
	return download.Options{Format: c.AudioFormat, Quality: c.AudioQuality}
}

// ChunkConfig returns the configured chunking defaults.
func (c *Config) ChunkConfig() text.Config {
	cfg := text.DefaultConfig()
	cfg.MaxLength = c.ChunkMaxLength
	return cfg
}

// NewLogger creates a structured logger writing to w.
// "json" outputs JSON logs suitable for production, "pretty" outputs
// colored logs for terminals, and anything else outputs plain text.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	switch strings.ToLower(c.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	case "pretty":
		handler = charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Level:           charmlog.Level(level),
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, OutputDir: %s, TempDir: %s, FFmpegPath: %s, YTDLPPath: %s, ChunkMaxLength: %d, GapMs: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.OutputDir,
		c.TempDir,
		c.FFmpegPath,
		c.YTDLPPath,
		c.ChunkMaxLength,
		c.GapMs,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
