// Package config handles application configuration loading from YAML files and environment variables.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "speakapp/internal/utils"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// OpenAI-compatible generative services
	OpenAI OpenAIConfig `json:"openai" yaml:"openai"`

	// Audio artifact storage
	Audio AudioConfig `json:"audio" yaml:"audio"`

	// Admission rate limiting
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Problem generation settings
	Problems ProblemsConfig `json:"problems" yaml:"problems"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port            string   `json:"port" yaml:"port"`
	Environment     string   `json:"environment" yaml:"environment"` // "development" or "production"
	Debug           bool     `json:"debug" yaml:"debug"`
	LogLevel        string   `json:"log_level" yaml:"log_level"`
	CORSOrigins     []string `json:"cors_origins" yaml:"cors_origins"`
	SessionTTLHours int      `json:"session_ttl_hours" yaml:"session_ttl_hours"`
	EnforceHTTPS    bool     `json:"enforce_https" yaml:"enforce_https"`
}

// IsDevelopment reports whether the server runs in the development environment.
// HTTPS enforcement is skipped in development.
func (s *ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(s.Environment, "development")
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// OpenAIConfig represents the OpenAI-compatible service configuration.
// The same gateway settings are shared by text generation, transcription
// and speech synthesis.
type OpenAIConfig struct {
	APIKey             string  `json:"api_key" yaml:"api_key"`
	BaseURL            string  `json:"base_url" yaml:"base_url"`
	Model              string  `json:"model" yaml:"model"`
	TranscriptionModel string  `json:"transcription_model" yaml:"transcription_model"`
	TTSModel           string  `json:"tts_model" yaml:"tts_model"`
	TTSVoice           string  `json:"tts_voice" yaml:"tts_voice"`
	TTSSpeed           float64 `json:"tts_speed" yaml:"tts_speed"`
}

// AudioConfig represents audio artifact storage configuration
type AudioConfig struct {
	Dir            string `json:"dir" yaml:"dir"`
	MaxUploadBytes int64  `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	RetentionHours int    `json:"retention_hours" yaml:"retention_hours"`
}

// RateLimitConfig represents admission rate limiting configuration
type RateLimitConfig struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	Requests      int  `json:"requests" yaml:"requests"`
	WindowSeconds int  `json:"window_seconds" yaml:"window_seconds"`
}

// ProblemsConfig represents problem generation configuration
type ProblemsConfig struct {
	TopicCategories []string `json:"topic_categories" yaml:"topic_categories"`
	HistoryWindow   int      `json:"history_window" yaml:"history_window"` // recent questions fed back to avoid repeats
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "http://localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "speak-backend"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`   // Default: true
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`   // Default: true
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`   // Default: true
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"`     // Default: 1.0 (100%)
	UseAutoSDK     bool              `json:"use_auto_sdk" yaml:"use_auto_sdk"`       // Use the zero-code auto SDK tracer provider
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.applyDefaults()

	return config, nil
}

// applyDefaults fills in values that must never be zero
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.SessionTTLHours <= 0 {
		c.Server.SessionTTLHours = DefaultSessionTTLHours
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.TTSSpeed == 0 {
		c.OpenAI.TTSSpeed = DefaultTTSSpeed
	}
	if c.OpenAI.TTSVoice == "" {
		c.OpenAI.TTSVoice = DefaultTTSVoice
	}
	if c.Audio.Dir == "" {
		c.Audio.Dir = "audio_files"
	}
	if c.Audio.MaxUploadBytes <= 0 {
		c.Audio.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Audio.RetentionHours <= 0 {
		c.Audio.RetentionHours = DefaultAudioRetentionHours
	}
	if c.RateLimit.Requests <= 0 {
		c.RateLimit.Requests = DefaultRateLimitRequests
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = DefaultRateLimitWindowSeconds
	}
	if c.Problems.HistoryWindow <= 0 {
		c.Problems.HistoryWindow = DefaultProblemHistoryWindow
	}
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnv(c)
}

// overrideStructFromEnv recursively overrides struct fields with environment variables
func overrideStructFromEnv(v interface{}) {
	overrideStructFromEnvWithPrefix(v, "")
}

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		// Get the yaml tag for the field
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		// Convert yaml tag to environment variable name
		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if uintVal, err := strconv.ParseUint(envVal, 10, 64); err == nil {
					field.SetUint(uintVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				// Handle string slices (like CORS_ORIGINS)
				if field.Type().Elem().Kind() == reflect.String {
					slice := strings.Split(envVal, ",")
					field.Set(reflect.ValueOf(slice))
				}
			}
		case reflect.Struct:
			// Recursively process nested structs with the field name as prefix
			if field.CanAddr() {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), fieldPrefix)
			}
		case reflect.Ptr:
			// Handle pointer to struct
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				fieldPrefix := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
				if prefix != "" {
					fieldPrefix = prefix + "_" + fieldPrefix
				}
				overrideStructFromEnvWithPrefix(field.Interface(), fieldPrefix)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file with potential local overrides
func loadConfigWithOverrides() (result0 *Config, err error) {
	// Try to load from environment variable first
	if envPath := os.Getenv("SPEAK_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	// If no environment variable is set, try default config.yaml
	return loadConfigFromFile("config.yaml")
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
