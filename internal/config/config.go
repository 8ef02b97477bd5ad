package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Bind           string `yaml:"bind"`
	Port           int    `yaml:"port"`
	Debug          bool   `yaml:"debug"`
	KeepRecordings bool   `yaml:"keep_recordings"`
}

type ModelConfig struct {
	Name         string `yaml:"name"`
	Dir          string `yaml:"dir"`
	Language     string `yaml:"language"`
	AutoDownload bool   `yaml:"auto_download"`
}

type RecordingConfig struct {
	SampleRate           int     `yaml:"sample_rate"`
	Channels             int     `yaml:"channels"`
	Backend              string  `yaml:"backend"`
	Input                string  `yaml:"input"`
	SilenceGate          bool    `yaml:"silence_gate"`
	SilenceThresholdDBFS float64 `yaml:"silence_threshold_dbfs"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Recording RecordingConfig `yaml:"recording"`
}

// Default returns the built-in configuration: the UI on localhost port 1337
// and the medium model, matching the original app's settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 1337,
		},
		Model: ModelConfig{
			Name:         "medium",
			Language:     "auto",
			AutoDownload: true,
		},
		Recording: RecordingConfig{
			SampleRate:           16000,
			Channels:             1,
			Backend:              "auto",
			SilenceGate:          true,
			SilenceThresholdDBFS: -65,
		},
	}
}

// Load reads the YAML config at path over the defaults and then applies
// ONIONTALKS_* environment variables (a .env file in the working directory
// is honored). A missing config file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Recording.Channels)
	}
	return nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ONIONTALKS_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("ONIONTALKS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ONIONTALKS_DEBUG"); v != "" {
		cfg.Server.Debug = isTruthy(v)
	}
	if v := os.Getenv("ONIONTALKS_KEEP_RECORDINGS"); v != "" {
		cfg.Server.KeepRecordings = isTruthy(v)
	}
	if v := os.Getenv("ONIONTALKS_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("ONIONTALKS_MODEL_DIR"); v != "" {
		cfg.Model.Dir = v
	}
	if v := os.Getenv("ONIONTALKS_LANGUAGE"); v != "" {
		cfg.Model.Language = v
	}
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
