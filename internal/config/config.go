package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config carries every tunable the server reads at startup.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Session   SessionConfig   `yaml:"session" envconfig:"SESSION"`
	Upload    UploadConfig    `yaml:"upload" envconfig:"UPLOAD"`
	Export    ExportConfig    `yaml:"export" envconfig:"EXPORT"`
}

// ServerConfig shapes the HTTP listener and its timeouts.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"60s"`
}

// SecurityConfig controls CORS and request throttling.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig bounds the request rate per client IP.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig selects level, format, and destinations for the
// structured logger.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"true"`
}

// PathsConfig names the directories the server works in. Relative
// entries resolve against the executable directory, not the cwd.
type PathsConfig struct {
	ExecutableDir string `yaml:"executable_dir" envconfig:"EXECUTABLE_DIR"`
	DataDir       string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	WebDir        string `yaml:"web_dir" envconfig:"WEB_DIR" default:"web"`
	LogsDir       string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
	ExportsDir    string `yaml:"exports_dir" envconfig:"EXPORTS_DIR" default:"data/exports"`
}

// WebSocketConfig tunes the progress socket upgrade buffers. The
// keepalive cadence is fixed in the websocket package to keep ping and
// pong deadlines in lockstep.
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
}

// SessionConfig governs the browser session cookie and store.
type SessionConfig struct {
	CookieName      string        `yaml:"cookie_name" envconfig:"COOKIE_NAME" default:"parcel_session"`
	TTL             time.Duration `yaml:"ttl" envconfig:"TTL" default:"24h"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" envconfig:"CLEANUP_INTERVAL" default:"10m"`
}

// UploadConfig bounds invoice uploads.
type UploadConfig struct {
	MaxSizeBytes      int64    `yaml:"max_size_bytes" envconfig:"MAX_SIZE_BYTES" default:"26214400"`
	AllowedExtensions []string `yaml:"allowed_extensions" envconfig:"ALLOWED_EXTENSIONS" default:".csv,.xlsx"`
	KeepOriginals     bool     `yaml:"keep_originals" envconfig:"KEEP_ORIGINALS" default:"false"`
	// RetainFor bounds how long archived originals are kept; zero keeps
	// them forever
	RetainFor time.Duration `yaml:"retain_for" envconfig:"RETAIN_FOR" default:"720h"`
}

// ExportConfig controls dated report copies.
type ExportConfig struct {
	// KeepCopies writes a dated copy of every downloaded report to the
	// exports directory
	KeepCopies bool `yaml:"keep_copies" envconfig:"KEEP_COPIES" default:"true"`
	// RetainFor bounds how long dated copies are kept; zero keeps them
	// forever
	RetainFor time.Duration `yaml:"retain_for" envconfig:"RETAIN_FOR" default:"2160h"`
}

// Load builds the configuration from PARCEL_* environment variables
// layered over the first config.yaml found on the search path. A
// missing file is fine; the environment alone is enough.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFromPath is Load with an explicit config file instead of the
// search path. The file must exist and parse.
func LoadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is empty")
	}
	return load(path)
}

func load(configFile string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("PARCEL", &cfg); err != nil {
		return nil, fmt.Errorf("reading PARCEL environment: %w", err)
	}

	if configFile != "" {
		fileCfg, err := readConfigFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", configFile, err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("resolving paths: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := cfg.ValidatePaths(); err != nil {
		return nil, fmt.Errorf("preparing directories: %w", err)
	}

	return &cfg, nil
}

func readConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs overlays the environment config on the file config.
// Fields the environment left at zero fall back to the file value.
func mergeConfigs(fromFile, fromEnv Config) Config {
	merged := fromEnv

	if merged.Server.Port == 0 {
		merged.Server.Port = fromFile.Server.Port
	}
	if merged.Server.ReadTimeout == 0 {
		merged.Server.ReadTimeout = fromFile.Server.ReadTimeout
	}
	if merged.Server.WriteTimeout == 0 {
		merged.Server.WriteTimeout = fromFile.Server.WriteTimeout
	}
	if merged.Server.RequestTimeout == 0 {
		merged.Server.RequestTimeout = fromFile.Server.RequestTimeout
	}

	if merged.Logging.Level == "" {
		merged.Logging.Level = fromFile.Logging.Level
	}
	if merged.Logging.FilePath == "" {
		merged.Logging.FilePath = fromFile.Logging.FilePath
	}

	if merged.Session.CookieName == "" {
		merged.Session.CookieName = fromFile.Session.CookieName
	}
	if merged.Session.TTL == 0 {
		merged.Session.TTL = fromFile.Session.TTL
	}

	if merged.Upload.MaxSizeBytes == 0 {
		merged.Upload.MaxSizeBytes = fromFile.Upload.MaxSizeBytes
	}
	if len(merged.Upload.AllowedExtensions) == 0 {
		merged.Upload.AllowedExtensions = fromFile.Upload.AllowedExtensions
	}

	return merged
}

// resolvePaths pins the executable directory so relative path
// fallbacks have an anchor.
func (c *Config) resolvePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}
	c.Paths.ExecutableDir = paths.ExecutableDir
	return nil
}

// ValidatePaths makes sure the on-disk layout exists, creating
// directories as needed.
func (c *Config) ValidatePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}
	paths.LogPathResolution()
	return nil
}

// GetDataDir returns the resolved data directory, falling back to
// config-relative resolution when the executable cannot be located.
func (c *Config) GetDataDir() string {
	if paths, err := GetPaths(); err == nil {
		return paths.DataDir
	}
	if filepath.IsAbs(c.Paths.DataDir) {
		return c.Paths.DataDir
	}
	return filepath.Join(c.Paths.ExecutableDir, c.Paths.DataDir)
}

// AllowedExtension reports whether the upload extension is accepted.
// The comparison is case-insensitive and expects a leading dot.
func (c *Config) AllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range c.Upload.AllowedExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

// validate rejects configurations the server cannot run with. Logging
// settings are normalized instead of rejected.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("upload max size must be positive")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	switch c.Logging.Output {
	case "both", "file", "console":
	default:
		c.Logging.Output = "both"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// findConfigFile walks the usual locations for a config.yaml and
// returns the first hit, or "" when the server runs on environment
// variables alone.
func findConfigFile() string {
	for _, loc := range []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
		"../../configs/config.yaml",
	} {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Default returns the built-in configuration used when neither the
// environment nor a config file overrides anything.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "both",
			FilePath:    "logs/app.log",
			Development: true,
		},
		Paths: PathsConfig{
			DataDir:    "data",
			WebDir:     "web",
			LogsDir:    "logs",
			ExportsDir: "data/exports",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Session: SessionConfig{
			CookieName:      "parcel_session",
			TTL:             24 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Upload: UploadConfig{
			MaxSizeBytes:      25 << 20, // 25MB
			AllowedExtensions: []string{".csv", ".xlsx"},
			RetainFor:         30 * 24 * time.Hour,
		},
		Export: ExportConfig{
			KeepCopies: true,
			RetainFor:  90 * 24 * time.Hour,
		},
	}
}
