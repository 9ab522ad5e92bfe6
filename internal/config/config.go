package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"

	"invoicer/internal/logger"
)

const (
	// StorageGridFS stores PDFs in MongoDB GridFS.
	StorageGridFS = "gridfs"
	// StorageBlob stores PDFs in an S3-compatible blob store.
	StorageBlob = "blob"

	// DriverMongo and DriverMemory select the invoice repository backend.
	DriverMongo  = "mongo"
	DriverMemory = "memory"

	envProduction = "production"
)

type Config struct {
	// Deployment
	AppEnv   string
	HTTPAddr string

	// HTTP API
	MaxFileSize   int64
	CORSOrigins   []string
	JWTSecret     string
	ShutdownGrace time.Duration

	// MongoDB Configuration
	DatabaseDriver      string
	MongoURI            string
	MongoDatabase       string
	MongoConnectTimeout time.Duration
	MongoSocketTimeout  time.Duration

	// Blob Storage Configuration (S3-compatible)
	BlobAccessKeyID     string
	BlobSecretAccessKey string
	BlobBucket          string
	BlobRegion          string
	BlobEndpoint        string

	// AI Providers
	GeminiAPIKey   string
	GeminiModel    string
	GeminiBaseURL  string
	GroqAPIKey     string
	GroqModel      string
	GroqBaseURL    string
	AITemperature  float32
	AIMaxTokens    int
	AITimeout      time.Duration
	AIMaxTextChars int

	// Google Cloud Configuration
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string
	GoogleCredentialsJSON      string
	GoogleCredentialsFile      string
	VisionOCREnabled           bool

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the environment and validates the result for the HTTP server.
func Load() (*Config, error) {
	config := Read()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Read reads the environment without validation. Local commands that need
// only part of the stack use it and check their own requirements.
func Read() *Config {
	return &Config{
		AppEnv:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":3001"),
		MaxFileSize:                getEnvInt64("MAX_FILE_SIZE", 10*1024*1024),
		CORSOrigins:                getEnvList("CORS_ORIGINS", "http://localhost:3000"),
		JWTSecret:                  getEnv("AUTH_JWT_SECRET", ""),
		ShutdownGrace:              getEnvDuration("SHUTDOWN_GRACE", 15*time.Second),
		DatabaseDriver:             strings.ToLower(getEnv("DATABASE_DRIVER", DriverMongo)),
		MongoURI:                   getEnv("MONGODB_URI", ""),
		MongoDatabase:              getEnv("MONGODB_DATABASE", "invoicer"),
		MongoConnectTimeout:        getEnvDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		MongoSocketTimeout:         getEnvDuration("MONGODB_SOCKET_TIMEOUT", 45*time.Second),
		BlobAccessKeyID:            getEnv("BLOB_ACCESS_KEY_ID", ""),
		BlobSecretAccessKey:        getEnv("BLOB_SECRET_ACCESS_KEY", ""),
		BlobBucket:                 getEnv("BLOB_BUCKET", ""),
		BlobRegion:                 getEnv("BLOB_REGION", "us-east-1"),
		BlobEndpoint:               getEnv("BLOB_ENDPOINT", ""),
		GeminiAPIKey:               getEnv("GEMINI_API_KEY", ""),
		GeminiModel:                getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL:              getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
		GroqAPIKey:                 getEnv("GROQ_API_KEY", ""),
		GroqModel:                  getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		GroqBaseURL:                getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		AITemperature:              getEnvFloat32("AI_TEMPERATURE", 0.1),
		AIMaxTokens:                getEnvInt("AI_MAX_TOKENS", 2048),
		AITimeout:                  getEnvDuration("AI_TIMEOUT", 60*time.Second),
		AIMaxTextChars:             getEnvInt("AI_MAX_TEXT_CHARS", 30000),
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		GoogleCredentialsJSON:      getEnv("GOOGLE_CREDENTIALS", ""),
		GoogleCredentialsFile:      getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		VisionOCREnabled:           getEnvBool("VISION_OCR_ENABLED", false),
		GoogleSheetURL:             getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:       getEnv("GOOGLE_SHEET_WORKSHEET", "Invoices"),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stdout"),
	}
}

func (c *Config) validate() error {
	if c.GeminiAPIKey == "" && c.GroqAPIKey == "" && !c.DocumentAIConfigured() {
		return fmt.Errorf("at least one AI provider is required: set GEMINI_API_KEY, GROQ_API_KEY or DOCUMENT_AI_PROCESSOR_ID with GOOGLE_CLOUD_PROJECT")
	}
	switch c.DatabaseDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required")
		}
	case DriverMemory:
		if c.StorageProvider() == StorageGridFS {
			return fmt.Errorf("DATABASE_DRIVER=memory requires blob storage (GridFS needs MongoDB)")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverMongo, DriverMemory, c.DatabaseDriver)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}
	if c.AIMaxTextChars <= 0 {
		return fmt.Errorf("AI_MAX_TEXT_CHARS must be positive")
	}
	return nil
}

// IsProduction reports whether the deployment-mode flag is set to production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, envProduction)
}

// BlobConfigured reports whether blob storage credentials are present.
func (c *Config) BlobConfigured() bool {
	return c.BlobAccessKeyID != "" && c.BlobSecretAccessKey != "" && c.BlobBucket != ""
}

// StorageProvider selects the file storage backend. Blob storage is used only
// when its credentials are present in a production deployment.
func (c *Config) StorageProvider() string {
	if c.BlobConfigured() && c.IsProduction() {
		return StorageBlob
	}
	return StorageGridFS
}

// DocumentAIConfigured reports whether the Document AI invoice parser can be used.
func (c *Config) DocumentAIConfigured() bool {
	return c.GoogleCloudProject != "" && c.DocumentAIProcessorID != ""
}

// GoogleClientOptions returns client options for Google Cloud APIs. Inline
// JSON credentials win over a credentials file; with neither, the client falls
// back to application default credentials.
func (c *Config) GoogleClientOptions() []option.ClientOption {
	switch {
	case c.GoogleCredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(c.GoogleCredentialsJSON))}
	case c.GoogleCredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(c.GoogleCredentialsFile)}
	default:
		return nil
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(getEnv(key, ""), 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
