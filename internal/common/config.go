package common

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Storage  StorageConfig
	Queue    QueueConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Worker   WorkerConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// StorageConfig holds object-store configuration. RootDir is the local
// bucket root; Bucket is the logical bucket name recorded on jobs; URLBase
// prefixes the public URL written into stage artifacts.
type StorageConfig struct {
	RootDir string
	Bucket  string
	URLBase string
}

// QueueConfig holds work-queue configuration
type QueueConfig struct {
	VisibilityTimeout time.Duration
	DedupWindow       time.Duration
	ReceiveInterval   time.Duration
}

// OCRConfig holds the external OCR job API configuration
type OCRConfig struct {
	Endpoint     string
	APIKey       string
	PollInterval time.Duration
	MaxAttempts  int
	HTTPTimeout  time.Duration
}

// LLMConfig holds summarizer configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
}

// WorkerConfig holds dequeuer and sweeper configuration
type WorkerConfig struct {
	Concurrency    int
	ProcessTimeout time.Duration
	SweepInterval  time.Duration
	StuckJobAge    time.Duration
}

var (
	loadOnce sync.Once
	loaded   *Config
)

// Load returns the process-wide Config. It reads the environment exactly
// once; subsequent calls return the cached value. Components receive the
// Config by injection and must not read env vars themselves.
func Load() *Config {
	loadOnce.Do(func() {
		loaded = loadFromEnv()
	})
	return loaded
}

// ResetForTest clears the cached Config so the next Load re-reads the
// environment. Tests only.
func ResetForTest() {
	loadOnce = sync.Once{}
	loaded = nil
}

func loadFromEnv() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Storage: StorageConfig{
			RootDir: getEnv("STORAGE_ROOT", "./storage"),
			Bucket:  getEnv("STORAGE_BUCKET", "documents"),
			URLBase: getEnv("STORAGE_URL_BASE", ""),
		},
		Queue: QueueConfig{
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 10*time.Minute),
			DedupWindow:       getEnvAsDuration("QUEUE_DEDUP_WINDOW", 5*time.Minute),
			ReceiveInterval:   getEnvAsDuration("QUEUE_RECEIVE_INTERVAL", time.Second),
		},
		OCR: OCRConfig{
			Endpoint:     getEnv("OCR_ENDPOINT", ""),
			APIKey:       getEnv("OCR_API_KEY", ""),
			PollInterval: getEnvAsDuration("OCR_POLL_INTERVAL", 5*time.Second),
			MaxAttempts:  getEnvAsInt("OCR_MAX_ATTEMPTS", 60),
			HTTPTimeout:  getEnvAsDuration("OCR_HTTP_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat64("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Worker: WorkerConfig{
			Concurrency:    getEnvAsInt("WORKER_CONCURRENCY", 4),
			ProcessTimeout: getEnvAsDuration("WORKER_PROCESS_TIMEOUT", 10*time.Minute),
			SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
			StuckJobAge:    getEnvAsDuration("STUCK_JOB_AGE", 30*time.Minute),
		},
	}
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.OCR.Endpoint == "" {
		return NewAppError("CONFIG_ERROR", "OCR_ENDPOINT is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.OCR.MaxAttempts <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_MAX_ATTEMPTS must be positive", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
