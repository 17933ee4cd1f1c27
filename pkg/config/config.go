package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultBaseURL is the public NCDS gateway
const DefaultBaseURL = "http://ncdsgw.inc.cuhk.edu.hk/physics/server/"

// DefaultCredential is the gateway's shared account, used for both
// username and password unless overridden.
const DefaultCredential = "ncdsphysics"

// Config represents the application configuration
type Config struct {
	Remote    RemoteConfig    `mapstructure:"remote"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
}

// RemoteConfig describes the storage gateway the client talks to
type RemoteConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// TelemetryConfig contains telemetry configuration
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// SandboxConfig configures the local stand-in gateway
type SandboxConfig struct {
	Port     int    `mapstructure:"port"`
	DataDir  string `mapstructure:"data_dir"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	cfg := &Config{}

	setDefaults()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := postProcess(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("remote.base_url", DefaultBaseURL)
	viper.SetDefault("remote.timeout", time.Duration(0)) // No timeout
	viper.SetDefault("remote.username", DefaultCredential)
	viper.SetDefault("remote.password", DefaultCredential)
	viper.SetDefault("remote.insecure_skip_verify", false)

	viper.SetDefault("telemetry.enabled", false)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)

	viper.SetDefault("sandbox.port", 8080)
	viper.SetDefault("sandbox.username", "ncds")
	viper.SetDefault("sandbox.password", "ncds")

	_ = viper.BindEnv("remote.base_url", "NCDS_BASE_URL")
	_ = viper.BindEnv("remote.username", "NCDS_USERNAME")
	_ = viper.BindEnv("remote.password", "NCDS_PASSWORD")
	_ = viper.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func postProcess(cfg *Config) error {
	base, err := NormalizeBaseURL(cfg.Remote.BaseURL)
	if err != nil {
		return err
	}
	cfg.Remote.BaseURL = base

	if cfg.Sandbox.DataDir == "" {
		cfg.Sandbox.DataDir = filepath.Join(os.TempDir(), "ncds-sandbox")
	}
	if !filepath.IsAbs(cfg.Sandbox.DataDir) {
		abs, err := filepath.Abs(cfg.Sandbox.DataDir)
		if err != nil {
			return err
		}
		cfg.Sandbox.DataDir = abs
	}

	return nil
}

// NormalizeBaseURL validates an http(s) base URL and makes sure its path
// ends with a slash, so endpoint names resolve beneath it.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("remote.base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid remote.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid remote.base_url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid remote.base_url %q: missing host", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}
