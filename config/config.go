package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string
	LogMode string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	JWTSecret    string
	JWTExpiryMin int

	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	ListCacheTTL   time.Duration
	CreateLimit    int
	CreateWindow   time.Duration
	RateLimitOnErr bool

	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string
	S3PresignTTL time.Duration

	LedgerPath string

	// DoctorWalletMarkers are matched case-insensitively against a wallet
	// address to decide whether it belongs to a doctor.
	DoctorWalletMarkers []string

	MaxUploadBytes    int64
	SimulateOnFailure bool
	// ReconcileInterval is how often unconfirmed artifacts are retried. Zero
	// disables the background worker.
	ReconcileInterval time.Duration
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		AppMode: getEnv("APP_MODE", "debug"),
		LogMode: getEnv("LOG_MODE", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "medportal"),
		DBPort:     getEnv("DB_PORT", "5432"),

		JWTSecret:    getEnv("JWT_SECRET", "change-me"),
		JWTExpiryMin: getEnvAsInt("JWT_EXPIRY_MIN", 60),

		RedisHost:      getEnv("REDIS_HOST", "localhost"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),
		ListCacheTTL:   getEnvAsDuration("ARTIFACT_LIST_CACHE_TTL", 2*time.Minute),
		CreateLimit:    getEnvAsInt("ARTIFACT_CREATE_LIMIT", 20),
		CreateWindow:   getEnvAsDuration("ARTIFACT_CREATE_WINDOW", time.Minute),
		RateLimitOnErr: getEnvAsBool("RATE_LIMIT_ALLOW_ON_ERROR", true),

		S3Region:     getEnv("S3_REGION", "us-east-1"),
		S3Bucket:     getEnv("S3_BUCKET", "medportal-artifacts"),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		S3PresignTTL: getEnvAsDuration("S3_PRESIGN_TTL", 15*time.Minute),

		LedgerPath: getEnv("LEDGER_PATH", "data/ledger"),

		DoctorWalletMarkers: getEnvAsList("DOCTOR_WALLET_MARKERS", []string{"doc"}),

		MaxUploadBytes:    int64(getEnvAsInt("ARTIFACT_MAX_UPLOAD_BYTES", 20<<20)),
		SimulateOnFailure: getEnvAsBool("ARTIFACT_SIMULATE_ON_FAILURE", false),
		ReconcileInterval: getEnvAsDuration("ARTIFACT_RECONCILE_INTERVAL", 2*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
