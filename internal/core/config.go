package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

type Config struct {
	DataDir     string   `yaml:"data_dir"`
	Backend     string   `yaml:"backend"`
	Album       string   `yaml:"album"`
	JPEGQuality int      `yaml:"jpeg_quality"`
	ImagePrefix string   `yaml:"image_prefix"`
	AudioPrefix string   `yaml:"audio_prefix"`
	LogLevel    string   `yaml:"log_level"`
	Workers     int      `yaml:"workers"`
	S3          S3Config `yaml:"s3"`
}

type ConfigOption func(*Config)

func WithDataDir(dataDir string) ConfigOption {
	return func(cfg *Config) {
		cfg.DataDir = dataDir
	}
}

func WithBackend(backend string) ConfigOption {
	return func(cfg *Config) {
		cfg.Backend = backend
	}
}

func WithAlbum(album string) ConfigOption {
	return func(cfg *Config) {
		cfg.Album = album
	}
}

func WithJPEGQuality(quality int) ConfigOption {
	return func(cfg *Config) {
		cfg.JPEGQuality = quality
	}
}

func WithLogLevel(level string) ConfigOption {
	return func(cfg *Config) {
		cfg.LogLevel = level
	}
}

func WithS3(s3 S3Config) ConfigOption {
	return func(cfg *Config) {
		cfg.S3 = s3
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DataDir:     "./gallery",
		Backend:     BackendLocal,
		Album:       "Gallery",
		JPEGQuality: 90,
		ImagePrefix: "Image_",
		AudioPrefix: "Vc_",
		LogLevel:    "info",
		Workers:     4,
		S3: S3Config{
			Endpoint: "localhost:9000",
			Bucket:   "gallery",
			Region:   "us-east-1",
		},
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Load reads configuration from the YAML file at path on top of the
// defaults, then applies opts. A missing file is not an error.
func Load(path string, opts ...ConfigOption) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.applyEnv()

	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func (c *Config) applyEnv() {
	c.S3.Endpoint = getenv("GALLERY_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKey = getenv("GALLERY_S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = getenv("GALLERY_S3_SECRET_KEY", c.S3.SecretKey)
	c.S3.Bucket = getenv("GALLERY_S3_BUCKET", c.S3.Bucket)
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()

	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = def.JPEGQuality
	}
	if c.ImagePrefix == "" {
		c.ImagePrefix = def.ImagePrefix
	}
	if c.AudioPrefix == "" {
		c.AudioPrefix = def.AudioPrefix
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.S3.Region == "" {
		c.S3.Region = def.S3.Region
	}
}

func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Backend) {
	case BackendLocal:
		if c.DataDir == "" {
			errs = append(errs, errors.New("data_dir must not be empty"))
		}
	case BackendS3:
		if c.S3.Endpoint == "" {
			errs = append(errs, errors.New("s3.endpoint must not be empty"))
		}
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3.bucket must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be within 1-100, got %d", c.JPEGQuality))
	}

	if c.Album != "" && (strings.ContainsAny(c.Album, `\`) || !filepath.IsLocal(c.Album)) {
		errs = append(errs, fmt.Errorf("album must be a relative path, got %q", c.Album))
	}

	return errors.Join(errs...)
}
