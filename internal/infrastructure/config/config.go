// Package config provides configuration structs and utilities for cropcare.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/text/language"
)

// Config represents the root configuration for cropcare.
type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Functions     FunctionsConfig     `yaml:"functions"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Sync          SyncConfig          `yaml:"sync"`
	Capture       CaptureConfig       `yaml:"capture"`
	Chat          ChatConfig          `yaml:"chat"`
	Translation   TranslationConfig   `yaml:"translation"`
	User          UserConfig          `yaml:"user"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// BackendConfig locates the hosted backend.
type BackendConfig struct {
	URL         string        `yaml:"url"`
	AnonKey     string        `yaml:"anon_key"`
	AccessToken string        `yaml:"access_token,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
}

// FunctionsConfig names the serverless functions and bounds their call rate.
type FunctionsConfig struct {
	Analyze           string        `yaml:"analyze"`
	Chat              string        `yaml:"chat"`
	Translate         string        `yaml:"translate"`
	Weather           string        `yaml:"weather"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	ImageBucket  string        `yaml:"image_bucket"`
	AvatarBucket string        `yaml:"avatar_bucket"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
}

// CacheConfig holds configuration for the local persistent cache.
type CacheConfig struct {
	DBPath        string        `yaml:"db_path"`
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepPeriod   time.Duration `yaml:"sweep_period"`
	RefreshPeriod time.Duration `yaml:"refresh_period"`
	RefreshLimit  int           `yaml:"refresh_limit"` // rows fetched per table on refresh
	WeatherTTL    time.Duration `yaml:"weather_ttl"`
}

// SyncConfig holds configuration for the reconciler and connectivity probe.
type SyncConfig struct {
	RetryCeiling  int           `yaml:"retry_ceiling"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	Realtime      bool          `yaml:"realtime"`
}

// CaptureConfig holds image acquisition and compression settings.
type CaptureConfig struct {
	Directory     string  `yaml:"directory"`
	SpoolDir      string  `yaml:"spool_dir"`
	MaxSizeMB     float64 `yaml:"max_size_mb"`
	MaxDimension  int     `yaml:"max_dimension"`
	JPEGQuality   int     `yaml:"jpeg_quality"`
	ThumbnailSize int     `yaml:"thumbnail_size"`
}

// ChatConfig holds assistant channel settings.
type ChatConfig struct {
	SentDelay      time.Duration `yaml:"sent_delay"`
	DeliveredDelay time.Duration `yaml:"delivered_delay"`
	WelcomeMessage string        `yaml:"welcome_message"`
	HistoryLimit   int           `yaml:"history_limit"`
}

// TranslationConfig holds translation cache bounds.
type TranslationConfig struct {
	MaxEntries   int `yaml:"max_entries"`
	PrefixLength int `yaml:"prefix_length"`
}

// UserConfig holds per-device user settings.
type UserConfig struct {
	Language string `yaml:"language"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ObservabilityConfig holds configuration for metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds configuration for the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`       // Whether tracing is enabled
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // OTLP collector endpoint
	SampleRate   float64 `yaml:"sample_rate"`   // Sampling rate (0.0 to 1.0)
	ServiceName  string  `yaml:"service_name"`  // Service name for traces
}

// Default configuration values.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultLanguage  = "en"

	DefaultAnalyzeFunction   = "analyze-crop"
	DefaultChatFunction      = "chat-assistant"
	DefaultTranslateFunction = "translate"
	DefaultWeatherFunction   = "get-weather"
	DefaultRequestsPerSecond = 2.0
	DefaultBurst             = 4

	DefaultImageBucket  = "crop-images"
	DefaultAvatarBucket = "avatars"
	DefaultSignedURLTTL = time.Hour

	DefaultCacheTTL      = 7 * 24 * time.Hour
	DefaultSweepPeriod   = time.Hour
	DefaultRefreshPeriod = 5 * time.Minute
	DefaultRefreshLimit  = 50
	DefaultWeatherTTL    = 30 * time.Minute

	DefaultRetryCeiling  = 3
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 5 * time.Second

	DefaultMaxSizeMB     = 1.0
	DefaultMaxDimension  = 1920
	DefaultJPEGQuality   = 85
	DefaultThumbnailSize = 256

	DefaultSentDelay      = 500 * time.Millisecond
	DefaultDeliveredDelay = 1500 * time.Millisecond
	DefaultWelcomeMessage = "Hello! I'm your crop assistant. Ask me about pests, diseases, soil or weather."
	DefaultHistoryLimit   = 50

	DefaultTranslationMaxEntries   = 500
	DefaultTranslationPrefixLength = 100

	DefaultMetricsEnabled      = false
	DefaultMetricsListenAddr   = "127.0.0.1:9464"
	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "cropcare"
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Timeout: DefaultTimeout,
		},
		Functions: FunctionsConfig{
			Analyze:           DefaultAnalyzeFunction,
			Chat:              DefaultChatFunction,
			Translate:         DefaultTranslateFunction,
			Weather:           DefaultWeatherFunction,
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
			Timeout:           DefaultTimeout,
		},
		Storage: StorageConfig{
			ImageBucket:  DefaultImageBucket,
			AvatarBucket: DefaultAvatarBucket,
			SignedURLTTL: DefaultSignedURLTTL,
		},
		Cache: CacheConfig{
			DefaultTTL:    DefaultCacheTTL,
			SweepPeriod:   DefaultSweepPeriod,
			RefreshPeriod: DefaultRefreshPeriod,
			RefreshLimit:  DefaultRefreshLimit,
			WeatherTTL:    DefaultWeatherTTL,
		},
		Sync: SyncConfig{
			RetryCeiling:  DefaultRetryCeiling,
			ProbeInterval: DefaultProbeInterval,
			ProbeTimeout:  DefaultProbeTimeout,
			Realtime:      true,
		},
		Capture: CaptureConfig{
			MaxSizeMB:     DefaultMaxSizeMB,
			MaxDimension:  DefaultMaxDimension,
			JPEGQuality:   DefaultJPEGQuality,
			ThumbnailSize: DefaultThumbnailSize,
		},
		Chat: ChatConfig{
			SentDelay:      DefaultSentDelay,
			DeliveredDelay: DefaultDeliveredDelay,
			WelcomeMessage: DefaultWelcomeMessage,
			HistoryLimit:   DefaultHistoryLimit,
		},
		Translation: TranslationConfig{
			MaxEntries:   DefaultTranslationMaxEntries,
			PrefixLength: DefaultTranslationPrefixLength,
		},
		User: UserConfig{
			Language: DefaultLanguage,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled:    DefaultMetricsEnabled,
				ListenAddr: DefaultMetricsListenAddr,
			},
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

type validator interface {
	Validate() error
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validator
	}{
		{"backend", &c.Backend},
		{"functions", &c.Functions},
		{"storage", &c.Storage},
		{"cache", &c.Cache},
		{"sync", &c.Sync},
		{"capture", &c.Capture},
		{"chat", &c.Chat},
		{"translation", &c.Translation},
		{"user", &c.User},
		{"logging", &c.Logging},
		{"observability", &c.Observability},
	}

	var errs []error
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks if the BackendConfig is valid. An empty URL means "not configured yet".
func (b *BackendConfig) Validate() error {
	var errs []error

	if b.URL != "" {
		parsed, err := url.Parse(b.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid url: %w", err))
		} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
			errs = append(errs, errors.New("url must use http or https scheme"))
		}
		if b.AnonKey == "" {
			errs = append(errs, errors.New("anon_key is required when url is set"))
		}
	}
	if b.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}

	return errors.Join(errs...)
}

// Configured reports whether a backend URL and key are present.
func (b *BackendConfig) Configured() bool {
	return b.URL != "" && b.AnonKey != ""
}

// Validate checks if the FunctionsConfig is valid.
func (f *FunctionsConfig) Validate() error {
	var errs []error

	for name, v := range map[string]string{"analyze": f.Analyze, "chat": f.Chat, "translate": f.Translate, "weather": f.Weather} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s function name is required", name))
		}
	}
	if f.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests_per_second must be non-negative"))
	}
	if f.RequestsPerSecond > 0 && f.Burst <= 0 {
		errs = append(errs, errors.New("burst must be positive when requests_per_second is set"))
	}
	if f.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks if the StorageConfig is valid.
func (s *StorageConfig) Validate() error {
	var errs []error

	if s.ImageBucket == "" {
		errs = append(errs, errors.New("image_bucket is required"))
	}
	if s.AvatarBucket == "" {
		errs = append(errs, errors.New("avatar_bucket is required"))
	}
	if s.SignedURLTTL <= 0 {
		errs = append(errs, errors.New("signed_url_ttl must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks if the CacheConfig is valid.
func (c *CacheConfig) Validate() error {
	var errs []error

	if c.DefaultTTL <= 0 {
		errs = append(errs, errors.New("default_ttl must be positive"))
	}
	if c.SweepPeriod <= 0 {
		errs = append(errs, errors.New("sweep_period must be positive"))
	}
	if c.RefreshPeriod <= 0 {
		errs = append(errs, errors.New("refresh_period must be positive"))
	}
	if c.RefreshLimit <= 0 {
		errs = append(errs, errors.New("refresh_limit must be positive"))
	}
	if c.WeatherTTL <= 0 {
		errs = append(errs, errors.New("weather_ttl must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks if the SyncConfig is valid.
func (s *SyncConfig) Validate() error {
	var errs []error

	if s.RetryCeiling <= 0 {
		errs = append(errs, errors.New("retry_ceiling must be positive"))
	}
	if s.ProbeInterval <= 0 {
		errs = append(errs, errors.New("probe_interval must be positive"))
	}
	if s.ProbeTimeout <= 0 || s.ProbeTimeout > s.ProbeInterval {
		errs = append(errs, errors.New("probe_timeout must be positive and no longer than probe_interval"))
	}

	return errors.Join(errs...)
}

// Validate checks if the CaptureConfig is valid.
func (c *CaptureConfig) Validate() error {
	var errs []error

	if c.MaxSizeMB <= 0 {
		errs = append(errs, errors.New("max_size_mb must be positive"))
	}
	if c.MaxDimension <= 0 {
		errs = append(errs, errors.New("max_dimension must be positive"))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, errors.New("jpeg_quality must be between 1 and 100"))
	}
	if c.ThumbnailSize <= 0 {
		errs = append(errs, errors.New("thumbnail_size must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks if the ChatConfig is valid.
func (c *ChatConfig) Validate() error {
	var errs []error

	if c.SentDelay < 0 || c.DeliveredDelay < 0 {
		errs = append(errs, errors.New("delivery delays must be non-negative"))
	}
	if c.DeliveredDelay < c.SentDelay {
		errs = append(errs, errors.New("delivered_delay must not be shorter than sent_delay"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("history_limit must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks if the TranslationConfig is valid.
func (t *TranslationConfig) Validate() error {
	var errs []error

	if t.MaxEntries <= 0 {
		errs = append(errs, errors.New("max_entries must be positive"))
	}
	if t.PrefixLength <= 0 {
		errs = append(errs, errors.New("prefix_length must be positive"))
	}

	return errors.Join(errs...)
}

// Validate checks the language is a well-formed BCP 47 tag.
func (u *UserConfig) Validate() error {
	if _, err := language.Parse(u.Language); err != nil {
		return fmt.Errorf("invalid language %q: %w", u.Language, err)
	}
	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	return errors.Join(errs...)
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	var errs []error

	if o.Metrics.Enabled && o.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics: listen_addr is required when metrics is enabled"))
	}

	if err := o.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	return errors.Join(errs...)
}
