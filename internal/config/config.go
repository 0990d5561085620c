// Package config loads the predictor settings from a YAML file, an optional
// .env file and the process environment, in that order of precedence (later
// sources win).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when CONFIG_PATH is unset.
const DefaultConfigPath = "config/dev/config.yml"

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type ModelConfig struct {
	Path              string `yaml:"path"`
	MetadataPath      string `yaml:"metadata_path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
	ImageHeight       int    `yaml:"image_height"`
	ImageWidth        int    `yaml:"image_width"`
	ResizeFilter      string `yaml:"resize_filter"`
}

type FilestoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"` // skips the bucket location lookup when set
}

type AuthConfig struct {
	Token string `yaml:"token"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Model     ModelConfig     `yaml:"model"`
	Filestore FilestoreConfig `yaml:"filestore"`
	Auth      AuthConfig      `yaml:"auth"`
}

// Default returns the settings used when neither file nor environment
// provide a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			RequestTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Model: ModelConfig{
			Path:         "model.onnx",
			ImageHeight:  256,
			ImageWidth:   256,
			ResizeFilter: "bicubic",
		},
		Filestore: FilestoreConfig{
			Endpoint:  "localhost:9000",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Bucket:    "trashscanner-images",
		},
	}
}

// Load reads CONFIG_PATH (or DefaultConfigPath), then .env, then the
// environment. A missing YAML or .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path := getEnv("CONFIG_PATH", DefaultConfigPath)
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges the YAML file at path over Default. Keys missing from the
// file keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnv("LOG_FILE", c.Logging.File)
	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.MetadataPath = getEnv("MODEL_METADATA_PATH", c.Model.MetadataPath)
	c.Model.SharedLibraryPath = getEnv("ONNXRUNTIME_LIB", c.Model.SharedLibraryPath)
	c.Model.ResizeFilter = getEnv("RESIZE_FILTER", c.Model.ResizeFilter)
	c.Filestore.Endpoint = getEnv("FILESTORE_ENDPOINT", c.Filestore.Endpoint)
	c.Filestore.AccessKey = getEnv("FILESTORE_ACCESS_KEY", c.Filestore.AccessKey)
	c.Filestore.SecretKey = getEnv("FILESTORE_SECRET_KEY", c.Filestore.SecretKey)
	c.Filestore.Bucket = getEnv("FILESTORE_BUCKET", c.Filestore.Bucket)
	c.Filestore.Region = getEnv("FILESTORE_REGION", c.Filestore.Region)
	c.Auth.Token = getEnv("AUTH_TOKEN", c.Auth.Token)

	var err error
	// PORT is honoured for platforms that inject it.
	if c.Server.Port, err = getEnvAsInt("PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Server.Port, err = getEnvAsInt("SERVER_PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Model.ImageHeight, err = getEnvAsInt("IMAGE_HEIGHT", c.Model.ImageHeight); err != nil {
		return err
	}
	if c.Model.ImageWidth, err = getEnvAsInt("IMAGE_WIDTH", c.Model.ImageWidth); err != nil {
		return err
	}
	if c.Server.RequestTimeout, err = getEnvAsDuration("SERVER_REQUEST_TIMEOUT", c.Server.RequestTimeout); err != nil {
		return err
	}
	if c.Filestore.UseSSL, err = getEnvAsBool("FILESTORE_USE_SSL", c.Filestore.UseSSL); err != nil {
		return err
	}
	return nil
}

var validLevels = map[string]bool{"debug": true, "info": true, "warning": true, "warn": true, "error": true}

var validFilters = map[string]bool{
	"nearest": true, "bilinear": true, "bicubic": true,
	"mitchell": true, "lanczos2": true, "lanczos3": true,
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive, got %s", c.Server.RequestTimeout)
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	if c.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if c.Model.ImageHeight <= 0 || c.Model.ImageWidth <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.Model.ImageWidth, c.Model.ImageHeight)
	}
	if !validFilters[strings.ToLower(c.Model.ResizeFilter)] {
		return fmt.Errorf("unknown model.resize_filter %q", c.Model.ResizeFilter)
	}
	if c.Filestore.Bucket == "" {
		return errors.New("filestore.bucket is required")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return intValue, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
