// Package config provides configuration management for the studio agent.
// Values come from defaults, then an optional TOML file, then environment
// variables, each layer overriding the previous one.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort      = 8790
	DefaultLogLevel  = "info"
	DefaultLogFormat = "auto"
	DefaultDataDir   = ".tourneyreel"

	DefaultFFmpegPath  = "ffmpeg"
	DefaultFFprobePath = "ffprobe"

	DefaultDraftDebounceMs      = 750
	DefaultExportPollIntervalMs = 1000
	DefaultFrameIntervalMs      = 16
	DefaultEDLFrameRate         = 30.0
	DefaultProbeTimeoutSeconds  = 10
	DefaultExportTimeoutMinutes = 30

	// Environment variable names
	EnvPort               = "STUDIO_PORT"
	EnvLogLevel           = "STUDIO_LOG_LEVEL"
	EnvLogFormat          = "STUDIO_LOG_FORMAT"
	EnvDataDir            = "STUDIO_DATA_DIR"
	EnvHeadless           = "STUDIO_HEADLESS"
	EnvFFmpegPath         = "STUDIO_FFMPEG_PATH"
	EnvFFprobePath        = "STUDIO_FFPROBE_PATH"
	EnvUploadBaseURL      = "STUDIO_UPLOAD_BASE_URL"
	EnvUploadToken        = "STUDIO_UPLOAD_TOKEN"
	EnvPublicBaseURL      = "STUDIO_PUBLIC_BASE_URL"
	EnvDraftDebounceMs    = "STUDIO_DRAFT_DEBOUNCE_MS"
	EnvExportPollInterval = "STUDIO_EXPORT_POLL_INTERVAL_MS"
	EnvFrameIntervalMs    = "STUDIO_FRAME_INTERVAL_MS"
	EnvEDLFrameRate       = "STUDIO_EDL_FRAME_RATE"

	// Database filename
	DBFilename = "studio.db"

	// ConfigFilename is looked up in the data dir when no explicit path is given.
	ConfigFilename = "studio.toml"

	// LockFilename guards against two agents sharing one data dir.
	LockFilename = "studio.lock"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	LockPath() string
	OutputDir() string
	Headless() bool
	FFmpegPath() string
	FFprobePath() string
	ProbeTimeout() time.Duration
	ExportTimeout() time.Duration
	UploadBaseURL() string
	UploadToken() string
	PublicBaseURL() string
	DraftDebounce() time.Duration
	ExportPollInterval() time.Duration
	FrameInterval() time.Duration
	EDLFrameRate() float64
}

// fileConfig mirrors studio.toml. Zero values mean "not set".
type fileConfig struct {
	Port                 int     `toml:"port"`
	LogLevel             string  `toml:"log_level"`
	LogFormat            string  `toml:"log_format"`
	DataDir              string  `toml:"data_dir"`
	Headless             *bool   `toml:"headless"`
	FFmpegPath           string  `toml:"ffmpeg_path"`
	FFprobePath          string  `toml:"ffprobe_path"`
	UploadBaseURL        string  `toml:"upload_base_url"`
	UploadToken          string  `toml:"upload_token"`
	PublicBaseURL        string  `toml:"public_base_url"`
	DraftDebounceMs      int     `toml:"draft_debounce_ms"`
	ExportPollIntervalMs int     `toml:"export_poll_interval_ms"`
	FrameIntervalMs      int     `toml:"frame_interval_ms"`
	EDLFrameRate         float64 `toml:"edl_frame_rate"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	port      int
	logLevel  string
	logFormat string
	dataDir   string
	headless  bool

	ffmpegPath  string
	ffprobePath string

	uploadBaseURL string
	uploadToken   string
	publicBaseURL string

	draftDebounceMs      int
	exportPollIntervalMs int
	frameIntervalMs      int
	edlFrameRate         float64
}

// New creates a new EnvConfig from defaults and environment variables.
// A studio.toml in the default data dir is honoured if present.
func New() (*EnvConfig, error) {
	return Load("")
}

// Load builds the configuration. path names a TOML file; when empty the
// data dir's studio.toml is used if it exists.
func Load(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:                 DefaultPort,
		logLevel:             DefaultLogLevel,
		logFormat:            DefaultLogFormat,
		dataDir:              defaultDataDir(),
		ffmpegPath:           DefaultFFmpegPath,
		ffprobePath:          DefaultFFprobePath,
		draftDebounceMs:      DefaultDraftDebounceMs,
		exportPollIntervalMs: DefaultExportPollIntervalMs,
		frameIntervalMs:      DefaultFrameIntervalMs,
		edlFrameRate:         DefaultEDLFrameRate,
	}

	explicit := path != ""
	if !explicit {
		dd := cfg.dataDir
		if env := os.Getenv(EnvDataDir); env != "" {
			dd = env
		}
		path = filepath.Join(dd, ConfigFilename)
	}
	if err := cfg.applyFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		if err := validatePort(fc.Port); err != nil {
			return fmt.Errorf("invalid port in %s: %w", path, err)
		}
		c.port = fc.Port
	}
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.logFormat, fc.LogFormat)
	setString(&c.dataDir, fc.DataDir)
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	setString(&c.ffmpegPath, fc.FFmpegPath)
	setString(&c.ffprobePath, fc.FFprobePath)
	setString(&c.uploadBaseURL, fc.UploadBaseURL)
	setString(&c.uploadToken, fc.UploadToken)
	setString(&c.publicBaseURL, fc.PublicBaseURL)
	setPositive(&c.draftDebounceMs, fc.DraftDebounceMs)
	setPositive(&c.exportPollIntervalMs, fc.ExportPollIntervalMs)
	setPositive(&c.frameIntervalMs, fc.FrameIntervalMs)
	if fc.EDLFrameRate > 0 {
		c.edlFrameRate = fc.EDLFrameRate
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := validatePort(port); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.logFormat, os.Getenv(EnvLogFormat))
	setString(&c.dataDir, os.Getenv(EnvDataDir))

	if h := os.Getenv(EnvHeadless); h != "" {
		v, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = v
	}

	setString(&c.ffmpegPath, os.Getenv(EnvFFmpegPath))
	setString(&c.ffprobePath, os.Getenv(EnvFFprobePath))
	setString(&c.uploadBaseURL, os.Getenv(EnvUploadBaseURL))
	setString(&c.uploadToken, os.Getenv(EnvUploadToken))
	setString(&c.publicBaseURL, os.Getenv(EnvPublicBaseURL))

	for _, iv := range []struct {
		env string
		dst *int
	}{
		{EnvDraftDebounceMs, &c.draftDebounceMs},
		{EnvExportPollInterval, &c.exportPollIntervalMs},
		{EnvFrameIntervalMs, &c.frameIntervalMs},
	} {
		raw := os.Getenv(iv.env)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s: must be a positive integer", iv.env)
		}
		*iv.dst = n
	}

	if fr := os.Getenv(EnvEDLFrameRate); fr != "" {
		v, err := strconv.ParseFloat(fr, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid %s: must be a positive number", EnvEDLFrameRate)
		}
		c.edlFrameRate = v
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns the log format (json, text, auto)
func (c *EnvConfig) LogFormat() string {
	return strings.ToLower(c.logFormat)
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// OutputDir is where rendered exports and locally stored assets live.
func (c *EnvConfig) OutputDir() string {
	return filepath.Join(c.dataDir, "outputs")
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return DefaultProbeTimeoutSeconds * time.Second
}

func (c *EnvConfig) ExportTimeout() time.Duration {
	return DefaultExportTimeoutMinutes * time.Minute
}

// UploadBaseURL is the remote asset service. Empty means outputs are kept
// locally and served by the agent itself.
func (c *EnvConfig) UploadBaseURL() string {
	return c.uploadBaseURL
}

func (c *EnvConfig) UploadToken() string {
	return c.uploadToken
}

// PublicBaseURL is the base for URLs of locally stored assets.
func (c *EnvConfig) PublicBaseURL() string {
	if c.publicBaseURL != "" {
		return strings.TrimRight(c.publicBaseURL, "/")
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.port)
}

func (c *EnvConfig) DraftDebounce() time.Duration {
	return time.Duration(c.draftDebounceMs) * time.Millisecond
}

func (c *EnvConfig) ExportPollInterval() time.Duration {
	return time.Duration(c.exportPollIntervalMs) * time.Millisecond
}

func (c *EnvConfig) FrameInterval() time.Duration {
	return time.Duration(c.frameIntervalMs) * time.Millisecond
}

func (c *EnvConfig) EDLFrameRate() float64 {
	return c.edlFrameRate
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
