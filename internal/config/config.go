// Package config gathers settings from defaults, an optional YAML file, a
// .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ModelConfig struct {
	Path              string `yaml:"path"`
	MetadataPath      string `yaml:"metadata_path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Port               string        `yaml:"port"`
	Model              ModelConfig   `yaml:"model"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	TempDir            string        `yaml:"temp_dir"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	Log                LogConfig     `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Port: "8080",
		Model: ModelConfig{
			Path: "models/fruit_classifier.onnx",
		},
		FetchTimeout:       30 * time.Second,
		SessionIdleTimeout: 30 * time.Minute,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. path names an optional YAML file; an empty
// path skips it, a missing named file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.Model.Path, "MODEL_PATH")
	setString(&c.Model.MetadataPath, "MODEL_METADATA_PATH")
	setString(&c.Model.SharedLibraryPath, "ONNXRUNTIME_SHARED_LIBRARY_PATH")
	setString(&c.TempDir, "TEMP_DIR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	if err := setDuration(&c.FetchTimeout, "FETCH_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&c.SessionIdleTimeout, "SESSION_IDLE_TIMEOUT")
}

func setString(dst *string, key string) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, key string) error {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = d
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}
	if c.Model.Path == "" {
		errs = append(errs, errors.New("model path must not be empty"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout))
	}
	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session idle timeout must be positive, got %s", c.SessionIdleTimeout))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
