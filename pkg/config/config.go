// Package config loads server and worker configuration from the environment.
// A Config is constructed once at startup and passed explicitly; nothing in
// this package is a mutable global.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all deployment configuration.
type Config struct {
	Port         string
	LogLevel     string
	OTLPEndpoint string

	// Database.
	DatabaseURL string
	DBSSLMode   string // disable|prefer|require

	// Broker / KV store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// IdempotencyPath, when set, switches the idempotency lock to a local
	// SQLite file for single-node deployments without Redis.
	IdempotencyPath string

	// Calculation provider.
	ClimatiqAPIKey string
	ClimatiqURL    string

	// OCR.
	VisionAPIKey string
	VisionURL    string

	// Email.
	EmailAPIKey    string
	EmailFromAddr  string
	EmailAPIURL    string
	EmailEnabled   bool
	FrontendOrigin string

	// Auth.
	JWTSecret        string
	JWTAlgorithm     string
	JWTExpiryMinutes int

	// Rate limits (requests per window).
	RateLimitGlobalPerMin int
	RateLimitCalcPerMin   int
	RateLimitCSVPerHour   int
	RateLimitWizardPerMin int

	// Files and artifacts.
	UploadDir       string
	ReportDir       string
	ReportTTLDays   int
	MaxCSVBytes     int64
	MaxInvoiceBytes int64
	S3Bucket        string // optional; empty keeps files on local disk
	S3Region        string
	S3Endpoint      string

	// Suggestion engine.
	ParameterProfilePath string

	// Workers.
	EventPipelineEnabled bool
	MaxRetries           int
	RetryBackoff         time.Duration
	ReportRetryBackoff   time.Duration
	ROIRetryBackoff      time.Duration
}

// Load reads configuration from environment variables with defaults suitable
// for local development.
func Load() *Config {
	return &Config{
		Port:         getenv("PORT", "8080"),
		LogLevel:     getenv("LOG_LEVEL", "INFO"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),

		DatabaseURL: getenv("DATABASE_URL", "postgres://karbon@localhost:5432/karbon?sslmode=disable"),
		DBSSLMode:   getenv("DB_SSL_MODE", "prefer"),

		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getint("REDIS_DB", 0),
		IdempotencyPath: os.Getenv("IDEMPOTENCY_SQLITE_PATH"),

		ClimatiqAPIKey: os.Getenv("CLIMATIQ_API_KEY"),
		ClimatiqURL:    getenv("CLIMATIQ_API_URL", "https://api.climatiq.io/data/v1/estimate"),

		VisionAPIKey: os.Getenv("VISION_API_KEY"),
		VisionURL:    getenv("VISION_API_URL", "https://vision.googleapis.com/v1/images:annotate"),

		EmailAPIKey:    os.Getenv("EMAIL_API_KEY"),
		EmailFromAddr:  getenv("EMAIL_FROM_ADDRESS", "no-reply@karbonuyum.com"),
		EmailAPIURL:    getenv("EMAIL_API_URL", "https://api.sendgrid.com/v3/mail/send"),
		EmailEnabled:   os.Getenv("EMAIL_API_KEY") != "",
		FrontendOrigin: getenv("FRONTEND_ORIGIN", "http://localhost:3000"),

		JWTSecret:        os.Getenv("SECRET_KEY"),
		JWTAlgorithm:     getenv("JWT_ALGORITHM", "HS256"),
		JWTExpiryMinutes: getint("ACCESS_TOKEN_EXPIRE_MINUTES", 30),

		RateLimitGlobalPerMin: getint("RATE_LIMIT_GLOBAL_PER_MIN", 200),
		RateLimitCalcPerMin:   getint("RATE_LIMIT_CALC_PER_MIN", 30),
		RateLimitCSVPerHour:   getint("RATE_LIMIT_CSV_PER_HOUR", 10),
		RateLimitWizardPerMin: getint("RATE_LIMIT_WIZARD_PER_MIN", 10),

		UploadDir:       getenv("UPLOAD_DIR", "/var/lib/karbon/uploads"),
		ReportDir:       getenv("REPORT_DIR", "/var/lib/karbon/reports"),
		ReportTTLDays:   getint("REPORT_TTL_DAYS", 7),
		MaxCSVBytes:     getint64("MAX_CSV_BYTES", 5<<20),
		MaxInvoiceBytes: getint64("MAX_INVOICE_BYTES", 10<<20),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Region:        getenv("S3_REGION", "eu-central-1"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),

		ParameterProfilePath: os.Getenv("PARAMETER_PROFILE_PATH"),

		EventPipelineEnabled: getenv("EVENT_PIPELINE_ENABLED", "true") == "true",
		MaxRetries:           getint("TASK_MAX_RETRIES", 3),
		RetryBackoff:         getduration("TASK_RETRY_BACKOFF", 60*time.Second),
		ReportRetryBackoff:   getduration("REPORT_RETRY_BACKOFF", 300*time.Second),
		ROIRetryBackoff:      getduration("ROI_RETRY_BACKOFF", 600*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
