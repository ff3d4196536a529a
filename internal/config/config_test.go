package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearParcelEnv unsets every PARCEL_* variable the tests touch so one
// case cannot leak settings into the next.
func clearParcelEnv(t *testing.T) {
	t.Helper()
	for _, envVar := range []string{
		"PARCEL_SERVER_PORT", "PARCEL_SERVER_READ_TIMEOUT", "PARCEL_SERVER_WRITE_TIMEOUT",
		"PARCEL_SECURITY_ALLOWED_ORIGINS", "PARCEL_SECURITY_ENABLE_CORS",
		"PARCEL_LOGGING_LEVEL", "PARCEL_LOGGING_FORMAT", "PARCEL_LOGGING_OUTPUT",
		"PARCEL_PATHS_DATA_DIR", "PARCEL_PATHS_WEB_DIR", "PARCEL_PATHS_LOGS_DIR",
		"PARCEL_SESSION_TTL", "PARCEL_SESSION_COOKIE_NAME",
		"PARCEL_UPLOAD_MAX_SIZE_BYTES", "PARCEL_UPLOAD_ALLOWED_EXTENSIONS",
	} {
		// t.Setenv restores the original value when the test ends.
		t.Setenv(envVar, "")
		os.Unsetenv(envVar)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults with no env vars", func(t *testing.T) {
		clearParcelEnv(t)

		cfg, err := Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 1048576, cfg.Server.MaxHeaderBytes)
		assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
		assert.True(t, cfg.Security.EnableCORS)
		assert.True(t, cfg.Security.RateLimit.Enabled)
		assert.Equal(t, 100.0, cfg.Security.RateLimit.RPS)
		assert.Equal(t, 50, cfg.Security.RateLimit.Burst)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, "both", cfg.Logging.Output)
		assert.Equal(t, "logs/app.log", cfg.Logging.FilePath)

		assert.Equal(t, "data", cfg.Paths.DataDir)
		assert.Equal(t, "web", cfg.Paths.WebDir)
		assert.Equal(t, "logs", cfg.Paths.LogsDir)
		assert.Equal(t, "data/exports", cfg.Paths.ExportsDir)

		assert.Equal(t, "parcel_session", cfg.Session.CookieName)
		assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
		assert.Equal(t, 10*time.Minute, cfg.Session.CleanupInterval)

		assert.Equal(t, int64(26214400), cfg.Upload.MaxSizeBytes)
		assert.Equal(t, []string{".csv", ".xlsx"}, cfg.Upload.AllowedExtensions)
		assert.Equal(t, 30*24*time.Hour, cfg.Upload.RetainFor)

		assert.True(t, cfg.Export.KeepCopies)
		assert.Equal(t, 90*24*time.Hour, cfg.Export.RetainFor)
	})

	t.Run("environment overrides", func(t *testing.T) {
		clearParcelEnv(t)
		t.Setenv("PARCEL_SERVER_PORT", "9090")
		t.Setenv("PARCEL_SERVER_READ_TIMEOUT", "30s")
		t.Setenv("PARCEL_SECURITY_ALLOWED_ORIGINS", "http://example.com,https://example.com")
		t.Setenv("PARCEL_LOGGING_LEVEL", "debug")
		t.Setenv("PARCEL_LOGGING_FORMAT", "text")
		t.Setenv("PARCEL_SESSION_TTL", "2h")
		t.Setenv("PARCEL_UPLOAD_MAX_SIZE_BYTES", "1048576")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, []string{"http://example.com", "https://example.com"}, cfg.Security.AllowedOrigins)
		assert.Equal(t, "debug", cfg.Logging.Level)
		// validate() normalizes any non-JSON format back to json.
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
		assert.Equal(t, int64(1048576), cfg.Upload.MaxSizeBytes)
	})

	badEnv := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "PARCEL_SERVER_PORT", "99999"},
		{"negative read timeout", "PARCEL_SERVER_READ_TIMEOUT", "-5s"},
		{"empty allowed origins", "PARCEL_SECURITY_ALLOWED_ORIGINS", ""},
		{"negative session ttl", "PARCEL_SESSION_TTL", "-1h"},
	}
	for _, tt := range badEnv {
		t.Run(tt.name, func(t *testing.T) {
			clearParcelEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validating config")
		})
	}
}

func TestReadConfigFile(t *testing.T) {
	writeConfig := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	t.Run("full yaml document", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9000
  read_timeout: 25s
security:
  allowed_origins: ["http://test.com"]
  enable_cors: false
logging:
  level: debug
session:
  cookie_name: test_session
  ttl: 1h
upload:
  max_size_bytes: 1024
export:
  keep_copies: true
  retain_for: 48h
`)

		cfg, err := readConfigFile(path)
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 25*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, []string{"http://test.com"}, cfg.Security.AllowedOrigins)
		assert.False(t, cfg.Security.EnableCORS)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "test_session", cfg.Session.CookieName)
		assert.Equal(t, time.Hour, cfg.Session.TTL)
		assert.Equal(t, int64(1024), cfg.Upload.MaxSizeBytes)
		assert.True(t, cfg.Export.KeepCopies)
		assert.Equal(t, 48*time.Hour, cfg.Export.RetainFor)
	})

	t.Run("partial document leaves the rest zero", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 8888\nlogging:\n  level: error\n")

		cfg, err := readConfigFile(path)
		require.NoError(t, err)

		assert.Equal(t, 8888, cfg.Server.Port)
		assert.Equal(t, "error", cfg.Logging.Level)
		assert.Zero(t, cfg.Server.ReadTimeout)
		assert.Empty(t, cfg.Security.AllowedOrigins)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "invalid: yaml: content: [unclosed")
		_, err := readConfigFile(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadFromPath(t *testing.T) {
	writeConfig := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	t.Run("file loads with env precedence", func(t *testing.T) {
		clearParcelEnv(t)
		t.Setenv("PARCEL_SERVER_PORT", "9090")
		path := writeConfig(t, "server:\n  port: 9000\n")

		cfg, err := LoadFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		clearParcelEnv(t)
		_, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "absent.yaml")
	})

	t.Run("empty path is an error", func(t *testing.T) {
		_, err := LoadFromPath("")
		assert.Error(t, err)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		clearParcelEnv(t)
		path := writeConfig(t, "server: [unclosed")
		_, err := LoadFromPath(path)
		assert.Error(t, err)
	})

	t.Run("validation still applies", func(t *testing.T) {
		clearParcelEnv(t)
		t.Setenv("PARCEL_SERVER_PORT", "-5")
		path := writeConfig(t, "logging:\n  level: info\n")

		_, err := LoadFromPath(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validating config")
	})
}

func TestMergeConfigs(t *testing.T) {
	fromFile := Config{
		Server: ServerConfig{
			Port:        6060,
			ReadTimeout: 20 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "error",
			FilePath: "/var/log/file.log",
		},
		Session: SessionConfig{
			CookieName: "file_session",
			TTL:        2 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSizeBytes:      1024,
			AllowedExtensions: []string{".csv"},
		},
	}

	fromEnv := Config{
		Server: ServerConfig{
			Port: 7070,
		},
		Logging: LoggingConfig{
			Level: "debug",
		},
		Upload: UploadConfig{
			MaxSizeBytes: 2048,
		},
	}

	merged := mergeConfigs(fromFile, fromEnv)

	// Environment wins where it set something.
	assert.Equal(t, 7070, merged.Server.Port)
	assert.Equal(t, "debug", merged.Logging.Level)
	assert.Equal(t, int64(2048), merged.Upload.MaxSizeBytes)

	// Zero-valued environment fields fall back to the file.
	assert.Equal(t, 20*time.Second, merged.Server.ReadTimeout)
	assert.Equal(t, "/var/log/file.log", merged.Logging.FilePath)
	assert.Equal(t, "file_session", merged.Session.CookieName)
	assert.Equal(t, 2*time.Hour, merged.Session.TTL)
	assert.Equal(t, []string{".csv"}, merged.Upload.AllowedExtensions)
}

func TestValidate(t *testing.T) {
	// valid returns a configuration that passes validation so each case
	// can break exactly one thing.
	valid := func() Config { return *Default() }

	t.Run("default configuration is valid", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "port zero",
			mutate: func(c *Config) { c.Server.Port = 0 },
			errMsg: "server port 0 out of range",
		},
		{
			name:   "port too high",
			mutate: func(c *Config) { c.Server.Port = 99999 },
			errMsg: "server port 99999 out of range",
		},
		{
			name:   "negative read timeout",
			mutate: func(c *Config) { c.Server.ReadTimeout = -time.Second },
			errMsg: "server read timeout must be positive",
		},
		{
			name:   "negative write timeout",
			mutate: func(c *Config) { c.Server.WriteTimeout = -time.Second },
			errMsg: "server write timeout must be positive",
		},
		{
			name:   "no allowed origins",
			mutate: func(c *Config) { c.Security.AllowedOrigins = nil },
			errMsg: "at least one allowed origin is required",
		},
		{
			name:   "zero session ttl",
			mutate: func(c *Config) { c.Session.TTL = 0 },
			errMsg: "session ttl must be positive",
		},
		{
			name:   "zero upload size",
			mutate: func(c *Config) { c.Upload.MaxSizeBytes = 0 },
			errMsg: "upload max size must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("logging settings are normalized not rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Format = "text"
		cfg.Logging.Output = "weird"
		cfg.Logging.FilePath = ""

		require.NoError(t, cfg.validate())
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, "both", cfg.Logging.Output)
		assert.Equal(t, "logs/app.log", cfg.Logging.FilePath)
	})

	t.Run("console output is accepted", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Output = "console"

		require.NoError(t, cfg.validate())
		assert.Equal(t, "console", cfg.Logging.Output)
	})
}

func TestAllowedExtension(t *testing.T) {
	cfg := Default()

	tests := []struct {
		ext  string
		want bool
	}{
		{".csv", true},
		{".CSV", true},
		{".xlsx", true},
		{".XLSX", true},
		{".txt", false},
		{"", false},
		{"csv", false}, // no leading dot
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.AllowedExtension(tt.ext))
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	chdir := func(t *testing.T, dir string) {
		t.Helper()
		orig, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() { os.Chdir(orig) })
	}

	t.Run("nothing on the search path", func(t *testing.T) {
		chdir(t, t.TempDir())
		assert.Empty(t, findConfigFile())
	})

	t.Run("config.yaml in the working directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("test"), 0644))
		chdir(t, dir)

		assert.Equal(t, "config.yaml", findConfigFile())
	})

	t.Run("configs subdirectory is searched", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), []byte("test"), 0644))
		chdir(t, dir)

		assert.Equal(t, "configs/config.yaml", findConfigFile())
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.Server.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)

	assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.Security.EnableCORS)
	assert.True(t, cfg.Security.RateLimit.Enabled)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)

	assert.Equal(t, "data", cfg.Paths.DataDir)
	assert.Equal(t, "web", cfg.Paths.WebDir)
	assert.Equal(t, "logs", cfg.Paths.LogsDir)
	assert.Equal(t, "data/exports", cfg.Paths.ExportsDir)

	assert.Equal(t, 1024, cfg.WebSocket.ReadBufferSize)
	assert.Equal(t, 1024, cfg.WebSocket.WriteBufferSize)

	assert.Equal(t, "parcel_session", cfg.Session.CookieName)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, int64(25<<20), cfg.Upload.MaxSizeBytes)
	assert.Equal(t, 30*24*time.Hour, cfg.Upload.RetainFor)
	assert.True(t, cfg.Export.KeepCopies)
	assert.Equal(t, 90*24*time.Hour, cfg.Export.RetainFor)

	// Defaults must themselves validate.
	assert.NoError(t, cfg.validate())
}
