package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Snapchat struct {
	BaseURL      string
	ClientID     string
	PublishToken string
}

type Scheduler struct {
	ScanInterval   time.Duration
	DrainInterval  time.Duration
	ScanBatchLimit int
	MaxConcurrent  int
	RateLimit      int
	PublishTimeout time.Duration
	QueueBackend   string // "memory" or "asynq"
}

type Config struct {
	PostgresURI string
	RedisURI    string
	MetricsAddr string
	FrontendURL string
	SecretKey   string
	CookieName  string
	R2          R2
	Snapchat    Snapchat
	Scheduler   Scheduler
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "127.0.0.1:6379"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9091"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:   getEnv("SECRET_KEY", ""),
		CookieName:  getEnv("COOKIE_NAME", "snapflow_session"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Snapchat: Snapchat{
			BaseURL:      getEnv("SNAPCHAT_BASE_URL", "https://businessapi.snapchat.com"),
			ClientID:     getEnv("SNAPCHAT_CLIENT_ID", ""),
			PublishToken: getEnv("SNAPCHAT_PUBLISH_TOKEN", ""),
		},
		Scheduler: Scheduler{
			ScanInterval:   getEnvDuration("SCAN_INTERVAL", time.Minute),
			DrainInterval:  getEnvDuration("DRAIN_INTERVAL", 5*time.Second),
			ScanBatchLimit: getEnvInt("SCAN_BATCH_LIMIT", 50),
			MaxConcurrent:  getEnvInt("MAX_CONCURRENT", 3),
			RateLimit:      getEnvInt("RATE_LIMIT", 10),
			PublishTimeout: getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second),
			QueueBackend:   getEnv("QUEUE_BACKEND", "memory"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
