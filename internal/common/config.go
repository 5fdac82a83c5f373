package common

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Worker   WorkerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Blob     BlobConfig
	Rules    RulesConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string `validate:"oneof=postgres sqlite"`
	DSN              string `validate:"required"`
	MaxConns         int32  `validate:"gte=1"`
	MinConns         int32  `validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration `validate:"gt=0"`
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// ServerConfig holds the health endpoint configuration
type ServerConfig struct {
	GRPCAddr string `validate:"required"`
}

// WorkerConfig holds job polling and retry configuration
type WorkerConfig struct {
	ID             string        `validate:"required"`
	Concurrency    int           `validate:"gte=1,lte=64"`
	QueueSize      int           `validate:"gte=1"`
	PollInterval   time.Duration `validate:"gt=0"`
	JobTimeout     time.Duration `validate:"gt=0"`
	StaleAfter     time.Duration `validate:"gt=0"`
	ReaperSchedule string        `validate:"required"`
	StorageRetries int           `validate:"gte=1,lte=10"`
	StorageBackoff time.Duration `validate:"gt=0"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engines          []string      `validate:"min=1,dive,oneof=native pdftotext vision tesseract"`
	MinChars         int           `validate:"gte=1"`
	EngineTimeout    time.Duration `validate:"gt=0"`
	Pdftotext        string
	Pdftoppm         string
	Tesseract        string
	TesseractLang    string
	DPI              int `validate:"gte=72,lte=1200"`
	MaxPages         int `validate:"gte=0"`
	HeicConverter    string `validate:"omitempty,oneof=magick heif-convert sips"`
	TessdataDir      string
	ArtifactCacheDir string
	VisionAPIKey     string
	VisionMaxPages   int `validate:"gte=1,lte=5"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider      string `validate:"oneof=openai gemini"`
	Model         string `validate:"required"`
	APIKey        string
	BaseURL       string
	Temperature   float32       `validate:"gte=0,lte=2"`
	Timeout       time.Duration `validate:"gt=0"`
	MaxInputChars int           `validate:"gte=500"`
}

// BlobConfig selects where raw uploads live
type BlobConfig struct {
	Backend           string `validate:"oneof=fs s3"`
	Dir               string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Bucket          string
	S3UseSSL          bool
}

// RulesConfig points at an optional classification rule set file
type RulesConfig struct {
	File string
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Worker: WorkerConfig{
			ID:             getEnv("WORKER_ID", defaultWorkerID()),
			Concurrency:    getEnvAsInt("WORKER_CONCURRENCY", 4),
			QueueSize:      getEnvAsInt("WORKER_QUEUE_SIZE", 64),
			PollInterval:   getEnvAsDuration("WORKER_POLL_INTERVAL", 2*time.Second),
			JobTimeout:     getEnvAsDuration("WORKER_JOB_TIMEOUT", 5*time.Minute),
			StaleAfter:     getEnvAsDuration("WORKER_STALE_AFTER", 15*time.Minute),
			ReaperSchedule: getEnv("WORKER_REAPER_SCHEDULE", "@every 1m"),
			StorageRetries: getEnvAsInt("STORAGE_RETRIES", 3),
			StorageBackoff: getEnvAsDuration("STORAGE_RETRY_BACKOFF", 200*time.Millisecond),
		},
		OCR: OCRConfig{
			Engines:          getEnvAsList("OCR_ENGINES", []string{"native", "vision", "tesseract"}),
			MinChars:         getEnvAsInt("OCR_MIN_CHARS", 50),
			EngineTimeout:    getEnvAsDuration("OCR_ENGINE_TIMEOUT", 45*time.Second),
			Pdftotext:        getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:         getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:        getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang:    getEnv("TESSERACT_LANG", "eng"),
			DPI:              getEnvAsInt("OCR_DPI", 300),
			MaxPages:         getEnvAsInt("OCR_MAX_PAGES", 30),
			HeicConverter:    getEnv("HEIC_CONVERTER", "magick"),
			TessdataDir:      getEnv("TESSDATA_PREFIX", ""),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
			VisionAPIKey:     getEnv("VISION_API_KEY", ""),
			VisionMaxPages:   getEnvAsInt("VISION_MAX_PAGES", 5),
		},
		LLM: LLMConfig{
			Provider:      getEnv("LLM_PROVIDER", "openai"),
			Model:         getEnv("LLM_MODEL", "gpt-4o-mini"),
			APIKey:        firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("OPENAI_API_KEY"), os.Getenv("GEMINI_API_KEY")),
			BaseURL:       getEnv("LLM_BASE_URL", ""),
			Temperature:   getEnvAsFloat32("LLM_TEMPERATURE", 0.1),
			Timeout:       getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
			MaxInputChars: getEnvAsInt("LLM_MAX_INPUT_CHARS", 6000),
		},
		Blob: BlobConfig{
			Backend:           getEnv("BLOB_BACKEND", "fs"),
			Dir:               getEnv("BLOB_DIR", "./data/uploads"),
			S3Endpoint:        getEnv("S3_ENDPOINT", ""),
			S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			S3Bucket:          getEnv("S3_BUCKET", "intake-uploads"),
			S3UseSSL:          getEnvAsBool("S3_USE_SSL", true),
		},
		Rules: RulesConfig{
			File: getEnv("RULES_FILE", ""),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Validate validates the whole configuration; a worker refuses to start on failure.
func (c *Config) Validate() error {
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	if errs := collect(c.Server, c.Worker, c.OCR, c.LLM, c.Log); len(errs) > 0 {
		return NewAppError("CONFIG_ERROR", JoinValidationErrors(errs), ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "LLM_API_KEY (or OPENAI_API_KEY / GEMINI_API_KEY) is required", ErrInvalidInput)
	}
	if slices.Contains(c.OCR.Engines, "vision") && c.OCR.VisionAPIKey == "" {
		return NewAppError("CONFIG_ERROR", "VISION_API_KEY is required when OCR_ENGINES includes vision", ErrInvalidInput)
	}
	return nil
}

// ValidateStorage validates only what tools touching the job table and blob store need.
func (c *Config) ValidateStorage() error {
	if errs := collect(c.Database, c.Blob); len(errs) > 0 {
		return NewAppError("CONFIG_ERROR", JoinValidationErrors(errs), ErrInvalidInput)
	}
	switch c.Blob.Backend {
	case "fs":
		if c.Blob.Dir == "" {
			return NewAppError("CONFIG_ERROR", "BLOB_DIR is required for the fs blob backend", ErrInvalidInput)
		}
	case "s3":
		if c.Blob.S3Endpoint == "" || c.Blob.S3Bucket == "" {
			return NewAppError("CONFIG_ERROR", "S3_ENDPOINT and S3_BUCKET are required for the s3 blob backend", ErrInvalidInput)
		}
	}
	return nil
}

func collect(sections ...interface{}) []ValidationError {
	var out []ValidationError
	for _, s := range sections {
		out = append(out, ValidateStruct(s)...)
	}
	return out
}
