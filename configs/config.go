package config

import (
	"os"
	"strconv"
	"time"
)

type S3 struct {
	Endpoint   string
	Region     string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Config struct {
	InstagramClientID     string
	InstagramClientSecret string
	InstagramRedirectURI  string
	InstagramAPIVersion   string
	TiktokClientKey       string
	TiktokClientSecret    string
	TiktokRedirectURI     string
	TiktokPrivacyLevel    string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	PostgresURI           string
	RedisURI              string
	ValkeyURI             string
	FrontendURL           string
	ServerAddr            string
	S3                    S3
	MediaPublicURL        string
	TiktokMediaURL        string
	SecretKey             string
	TokenEncryptionKey    string
	CookieName            string

	// publishing
	ContainerPollInterval time.Duration
	ContainerPollTimeout  time.Duration
	InstagramRatePerSec   int
	TiktokRatePerSec      int

	// jobs
	WorkerConcurrency     int
	WorkerShutdownTimeout time.Duration
	JobMaxAttempts        int
	JobRetryBaseDelay     time.Duration
	JobRetryMaxDelay      time.Duration
	ReconcileSpec         string
	TokenSweepSpec        string
}

func LoadConfig() *Config {
	mediaURL := getEnv("MEDIA_PUBLIC_URL", "")
	return &Config{
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		InstagramRedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
		InstagramAPIVersion:   getEnv("INSTAGRAM_API_VERSION", "v22.0"),
		TiktokClientKey:       getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret:    getEnv("TIKTOK_CLIENT_SECRET", ""),
		TiktokRedirectURI:     getEnv("TIKTOK_REDIRECT_URI", ""),
		TiktokPrivacyLevel:    getEnv("TIKTOK_PRIVACY_LEVEL", "SELF_ONLY"),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:     getEnv("GOOGLE_REDIRECT_URI", "http://localhost:3000/login/callback"),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", ""),
		ValkeyURI:             getEnv("VALKEY_URI", ""),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		ServerAddr:            getEnv("SERVER_ADDR", ":3000"),
		S3: S3{
			Endpoint:   getEnv("S3_ENDPOINT", ""),
			Region:     getEnv("S3_REGION", "us-east-1"),
			AccessKey:  getEnv("S3_ACCESS_KEY", ""),
			SecretKey:  getEnv("S3_SECRET_KEY", ""),
			BucketName: getEnv("S3_BUCKET_NAME", ""),
		},
		MediaPublicURL:     mediaURL,
		TiktokMediaURL:     getEnv("TIKTOK_MEDIA_URL", mediaURL),
		SecretKey:          getEnv("SECRET_KEY", ""),
		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),
		CookieName:         getEnv("COOKIE_NAME", "postflow_session"),

		ContainerPollInterval: getEnvDuration("CONTAINER_POLL_INTERVAL", time.Second),
		ContainerPollTimeout:  getEnvDuration("CONTAINER_POLL_TIMEOUT", 5*time.Minute),
		InstagramRatePerSec:   getEnvInt("INSTAGRAM_RATE_PER_SEC", 5),
		TiktokRatePerSec:      getEnvInt("TIKTOK_RATE_PER_SEC", 5),

		WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 10),
		WorkerShutdownTimeout: getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 10*time.Minute),
		JobMaxAttempts:        getEnvInt("JOB_MAX_ATTEMPTS", 5),
		JobRetryBaseDelay:     getEnvDuration("JOB_RETRY_BASE_DELAY", 30*time.Second),
		JobRetryMaxDelay:      getEnvDuration("JOB_RETRY_MAX_DELAY", 30*time.Minute),
		ReconcileSpec:         getEnv("RECONCILE_SPEC", "@every 00h01m00s"),
		TokenSweepSpec:        getEnv("TOKEN_SWEEP_SPEC", "@every 00h10m00s"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
