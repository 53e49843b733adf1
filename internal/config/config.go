// Package config assembles rangefetch settings from defaults, a YAML file,
// .env files and RANGEFETCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	s3dl "github.com/tanq16/rangefetch/internal/downloaders/s3"
	"github.com/tanq16/rangefetch/internal/utils"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine  utils.DownloadConfig
	HTTP    HTTPConfig
	S3      S3Config
	Log     LogConfig
	Metrics MetricsConfig
}

type HTTPConfig struct {
	UserAgent     string
	Proxy         string `validate:"omitempty,url"`
	ProxyUsername string
	ProxyPassword string
	BearerToken   string
	Headers       map[string]string
}

type S3Config struct {
	Profile   string
	Region    string
	Endpoint  string `validate:"omitempty,url"`
	PathStyle bool
}

type LogConfig struct {
	Debug      bool
	File       string
	MaxSizeMB  int `validate:"gte=0"`
	MaxBackups int `validate:"gte=0"`
	MaxAgeDays int `validate:"gte=0"`
}

type MetricsConfig struct {
	Addr string `validate:"omitempty,hostname_port"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Default() Config {
	return Config{
		Engine: utils.DefaultDownloadConfig(),
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// yamlConfig mirrors Config with strings for durations and byte sizes.
type yamlConfig struct {
	Workers          int               `yaml:"workers"`
	Connections      int               `yaml:"connections"`
	Retries          *int              `yaml:"retries"`
	RetryDelay       string            `yaml:"retry_delay"`
	RetryProbe       *bool             `yaml:"retry_probe"`
	ConnectTimeout   string            `yaml:"connect_timeout"`
	ReadTimeout      string            `yaml:"read_timeout"`
	WriteTimeout     string            `yaml:"write_timeout"`
	MinChunkSize     string            `yaml:"min_chunk_size"`
	BufferSize       string            `yaml:"buffer_size"`
	ProgressInterval string            `yaml:"progress_interval"`
	ProgressDelta    float64           `yaml:"progress_delta"`
	KeepPartial      bool              `yaml:"keep_partial"`
	UserAgent        string            `yaml:"user_agent"`
	Proxy            string            `yaml:"proxy"`
	ProxyUsername    string            `yaml:"proxy_username"`
	ProxyPassword    string            `yaml:"proxy_password"`
	BearerToken      string            `yaml:"bearer_token"`
	Headers          map[string]string `yaml:"headers"`
	S3               yamlS3Config      `yaml:"s3"`
	Log              yamlLogConfig     `yaml:"log"`
	MetricsAddr      string            `yaml:"metrics_addr"`
}

type yamlS3Config struct {
	Profile   string `yaml:"profile"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type yamlLogConfig struct {
	Debug      bool   `yaml:"debug"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoadFromFile reads a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	e := &cfg.Engine
	if yc.Workers != 0 {
		e.MaxConcurrentDownloads = yc.Workers
	}
	if yc.Connections != 0 {
		e.ThreadCount = yc.Connections
	}
	if yc.Retries != nil {
		e.RetryCount = *yc.Retries
	}
	if yc.RetryProbe != nil {
		e.NoProbeRetry = !*yc.RetryProbe
	}
	e.KeepPartialOnCancel = yc.KeepPartial
	if yc.ProgressDelta != 0 {
		e.ProgressDelta = yc.ProgressDelta
	}
	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"retry_delay", yc.RetryDelay, &e.RetryDelay},
		{"connect_timeout", yc.ConnectTimeout, &e.ConnectTimeout},
		{"read_timeout", yc.ReadTimeout, &e.ReadTimeout},
		{"write_timeout", yc.WriteTimeout, &e.WriteTimeout},
		{"progress_interval", yc.ProgressInterval, &e.ProgressUpdateInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if yc.MinChunkSize != "" {
		size, err := utils.ParseBytes(yc.MinChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse min_chunk_size: %w", err)
		}
		e.MinChunkSize = size
	}
	if yc.BufferSize != "" {
		size, err := utils.ParseBytes(yc.BufferSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse buffer_size: %w", err)
		}
		e.BufferSize = int(size)
	}

	cfg.HTTP = HTTPConfig{
		UserAgent:     yc.UserAgent,
		Proxy:         yc.Proxy,
		ProxyUsername: yc.ProxyUsername,
		ProxyPassword: yc.ProxyPassword,
		BearerToken:   yc.BearerToken,
		Headers:       yc.Headers,
	}
	cfg.S3 = S3Config(yc.S3)
	cfg.Log.Debug = yc.Log.Debug
	cfg.Log.File = yc.Log.File
	if yc.Log.MaxSizeMB != 0 {
		cfg.Log.MaxSizeMB = yc.Log.MaxSizeMB
	}
	if yc.Log.MaxBackups != 0 {
		cfg.Log.MaxBackups = yc.Log.MaxBackups
	}
	if yc.Log.MaxAgeDays != 0 {
		cfg.Log.MaxAgeDays = yc.Log.MaxAgeDays
	}
	cfg.Metrics.Addr = yc.MetricsAddr
	return cfg, nil
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

func env(name string) (string, bool) {
	v, ok := os.LookupEnv(utils.EnvPrefix + name)
	return v, ok && v != ""
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// LoadFromEnv applies RANGEFETCH_* variables to c.
func (c *Config) LoadFromEnv() error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"WORKERS", &c.Engine.MaxConcurrentDownloads},
		{"CONNECTIONS", &c.Engine.ThreadCount},
		{"RETRIES", &c.Engine.RetryCount},
	}
	for _, i := range ints {
		if v, ok := env(i.name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", utils.EnvPrefix, i.name, err)
			}
			*i.dst = n
		}
	}
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"RETRY_DELAY", &c.Engine.RetryDelay},
		{"CONNECT_TIMEOUT", &c.Engine.ConnectTimeout},
		{"TIMEOUT", &c.Engine.ReadTimeout},
		{"WRITE_TIMEOUT", &c.Engine.WriteTimeout},
	}
	for _, d := range durations {
		if v, ok := env(d.name); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", utils.EnvPrefix, d.name, err)
			}
			*d.dst = parsed
		}
	}
	if v, ok := env("BUFFER_SIZE"); ok {
		size, err := utils.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse %sBUFFER_SIZE: %w", utils.EnvPrefix, err)
		}
		c.Engine.BufferSize = int(size)
	}
	if v, ok := env("KEEP_PARTIAL"); ok {
		c.Engine.KeepPartialOnCancel = parseBool(v)
	}
	if v, ok := env("DEBUG"); ok {
		c.Log.Debug = parseBool(v)
	}
	if v, ok := env("S3_PATH_STYLE"); ok {
		c.S3.PathStyle = parseBool(v)
	}
	if v, ok := env("HEADERS"); ok {
		if c.HTTP.Headers == nil {
			c.HTTP.Headers = make(map[string]string)
		}
		for k, val := range utils.ParseHeaderArgs(strings.Split(v, ",")) {
			c.HTTP.Headers[k] = val
		}
	}
	strs := []struct {
		name string
		dst  *string
	}{
		{"USER_AGENT", &c.HTTP.UserAgent},
		{"PROXY", &c.HTTP.Proxy},
		{"PROXY_USERNAME", &c.HTTP.ProxyUsername},
		{"PROXY_PASSWORD", &c.HTTP.ProxyPassword},
		{"BEARER_TOKEN", &c.HTTP.BearerToken},
		{"S3_PROFILE", &c.S3.Profile},
		{"S3_REGION", &c.S3.Region},
		{"S3_ENDPOINT", &c.S3.Endpoint},
		{"LOG_FILE", &c.Log.File},
		{"METRICS_ADDR", &c.Metrics.Addr},
	}
	for _, s := range strs {
		if v, ok := env(s.name); ok {
			*s.dst = v
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// HTTPClient returns the transport settings for HTTP downloads.
func (c *Config) HTTPClient() utils.HTTPClientConfig {
	return utils.HTTPClientConfig{
		ConnectTimeout: c.Engine.ConnectTimeout,
		HeaderTimeout:  c.Engine.WriteTimeout,
		ProxyURL:       c.HTTP.Proxy,
		ProxyUsername:  c.HTTP.ProxyUsername,
		ProxyPassword:  c.HTTP.ProxyPassword,
		UserAgent:      c.HTTP.UserAgent,
		Headers:        c.HTTP.Headers,
		BearerToken:    c.HTTP.BearerToken,
		HighThreadMode: c.Engine.ThreadCount > 5,
	}
}

func (c *Config) S3Options() s3dl.Options {
	return s3dl.Options{
		Profile:   c.S3.Profile,
		Region:    c.S3.Region,
		Endpoint:  c.S3.Endpoint,
		PathStyle: c.S3.PathStyle,
	}
}

func (c *Config) LogFile() utils.LogFileConfig {
	return utils.LogFileConfig{
		Path:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}
