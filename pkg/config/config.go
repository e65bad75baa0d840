package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Typesense   TypesenseConfig
	AudioStore  AudioStoreConfig
	Engines     EnginesConfig
	Pipeline    PipelineConfig
	OTEL        OTELConfig
	Environment string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL    string
	APIKey string
}

// AudioStoreConfig holds object storage configuration for source audio
type AudioStoreConfig struct {
	BaseURL string
	APIKey  string
}

// EnginesConfig holds speech engine configuration. Provider values of "mock"
// select the deterministic in-process implementations.
type EnginesConfig struct {
	TranscriptionProvider string
	TranscriptionURL      string
	TranscriptionAPIKey   string
	DiarizationProvider   string
	DiarizationURL        string
	DiarizationToken      string
	MinSpeakers           int
	MaxSpeakers           int
}

// PipelineConfig holds tunable pipeline policy thresholds
type PipelineConfig struct {
	OverlapThreshold float64
	DefaultSpeaker   string
	MinBlockMinutes  int
	MinGapMs         int64
	StageTimeoutMin  int
	WorkerID         string
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "visit_pipeline"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			URL:    getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey: getEnv("TYPESENSE_API_KEY", "xyz"),
		},
		AudioStore: AudioStoreConfig{
			BaseURL: getEnv("AUDIO_STORE_URL", "http://localhost:9000"),
			APIKey:  getEnv("AUDIO_STORE_API_KEY", ""),
		},
		Engines: EnginesConfig{
			TranscriptionProvider: getEnv("TRANSCRIPTION_PROVIDER", "mock"),
			TranscriptionURL:      getEnv("TRANSCRIPTION_URL", ""),
			TranscriptionAPIKey:   getEnv("TRANSCRIPTION_API_KEY", ""),
			DiarizationProvider:   getEnv("DIARIZATION_PROVIDER", "mock"),
			DiarizationURL:        getEnv("DIARIZATION_URL", ""),
			DiarizationToken:      getEnv("DIARIZATION_TOKEN", ""),
			MinSpeakers:           getEnvAsInt("DIARIZATION_MIN_SPEAKERS", 1),
			MaxSpeakers:           getEnvAsInt("DIARIZATION_MAX_SPEAKERS", 2),
		},
		Pipeline: PipelineConfig{
			OverlapThreshold: getEnvAsFloat("ALIGNMENT_OVERLAP_THRESHOLD", 0.5),
			DefaultSpeaker:   getEnv("ALIGNMENT_DEFAULT_SPEAKER", "Speaker A"),
			MinBlockMinutes:  getEnvAsInt("BILLING_MIN_BLOCK_MINUTES", 5),
			MinGapMs:         int64(getEnvAsInt("BILLING_MIN_GAP_MS", 120000)),
			StageTimeoutMin:  getEnvAsInt("STAGE_TIMEOUT_MINUTES", 60),
			WorkerID:         getEnv("WORKER_ID", ""),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "visit-pipeline"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
