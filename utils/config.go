package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port           string
	DatabaseURL    string
	AllowedOrigins []string
	GatewayToken   string
	LogMode        string

	AutoCreateUsers   bool
	SubmitTimeout     time.Duration
	EvaluationTimeout time.Duration
	MaxWriteRetries   int

	EvalRetryInterval time.Duration
	SweepInterval     time.Duration
	ArchiveInterval   time.Duration
	NotifyBuffer      int
	CatalogPath       string

	RedisAddr    string
	RedisChannel string

	UserSyncURL      string
	UserSyncPath     string
	UserSyncToken    string
	UserSyncInterval time.Duration

	R2 R2Config
}

// LoadConfig reads the environment. godotenv.Load should have run before.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:          getenv("PORT", "5200"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		GatewayToken:  os.Getenv("GATEWAY_TOKEN"),
		LogMode:       getenv("LOG_MODE", "development"),
		CatalogPath:   os.Getenv("CATALOG_PATH"),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisChannel:  getenv("REDIS_CHANNEL", "progress-events"),
		UserSyncURL:   strings.TrimSpace(os.Getenv("USER_SYNC_URL")),
		UserSyncPath:  getenv("USER_SYNC_PATH", "/api/v1/public/profiles"),
		UserSyncToken: os.Getenv("USER_SYNC_TOKEN"),
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			Prefix:          getenv("ARCHIVE_PREFIX", "progress-ledger"),
		},
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	for _, origin := range strings.Split(getenv("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	var err error
	if cfg.AutoCreateUsers, err = boolEnv("AUTO_CREATE_USERS", true); err != nil {
		return nil, err
	}
	if cfg.SubmitTimeout, err = durationEnv("SUBMIT_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.EvaluationTimeout, err = durationEnv("EVALUATION_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.EvalRetryInterval, err = durationEnv("EVAL_RETRY_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ArchiveInterval, err = durationEnv("ARCHIVE_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.UserSyncInterval, err = durationEnv("USER_SYNC_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxWriteRetries, err = intEnv("MAX_WRITE_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.NotifyBuffer, err = intEnv("NOTIFY_BUFFER", 256); err != nil {
		return nil, err
	}
	if cfg.MaxWriteRetries < 1 {
		return nil, fmt.Errorf("MAX_WRITE_RETRIES must be >= 1, got %d", cfg.MaxWriteRetries)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return b, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}
