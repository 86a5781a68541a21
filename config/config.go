package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Session  SessionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	EmbeddedWorker     bool   // run the flush worker inside the API process
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/webinar?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds viewer token signing settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and S3 bucket names.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	Endpoint             string
	VideosBucket         string
	TranscriptsBucket    string
	PresignExpireMinutes int
}

// Enabled reports whether S3 is configured at all.
func (c AWSConfig) Enabled() bool {
	return c.Region != "" && (c.VideosBucket != "" || c.TranscriptsBucket != "")
}

// SessionConfig tunes session views.
type SessionConfig struct {
	Tick               time.Duration
	EarlyJoin          time.Duration
	ScheduleZone       string // IANA name; wins over ScheduleOffset when set
	ScheduleOffset     time.Duration
	FlushTimeout       time.Duration
	FlushRetry         time.Duration
	ResponseGrace      time.Duration
	SelectionTolerance time.Duration
}

// Location returns the reference zone schedules are written in.
func (c SessionConfig) Location() (*time.Location, error) {
	if c.ScheduleZone != "" {
		loc, err := time.LoadLocation(c.ScheduleZone)
		if err != nil {
			return nil, fmt.Errorf("schedule zone %q: %w", c.ScheduleZone, err)
		}
		return loc, nil
	}
	return time.FixedZone("REF", int(c.ScheduleOffset/time.Second)), nil
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 0),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			EmbeddedWorker:     getEnv("EMBEDDED_WORKER", "true") == "true",
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "webinar"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 0),
			MinConns: getEnvInt("DB_MIN_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			VideosBucket:         getEnv("AWS_S3_VIDEOS_BUCKET", ""),
			TranscriptsBucket:    getEnv("AWS_S3_TRANSCRIPTS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Session: SessionConfig{
			Tick:               getEnvDuration("SESSION_TICK_INTERVAL", time.Second),
			EarlyJoin:          getEnvDuration("SESSION_EARLY_JOIN", 0),
			ScheduleZone:       getEnv("SCHEDULE_TZ", ""),
			ScheduleOffset:     getEnvDuration("SCHEDULE_UTC_OFFSET", 5*time.Hour+30*time.Minute),
			FlushTimeout:       getEnvDuration("FLUSH_TIMEOUT", 10*time.Second),
			FlushRetry:         getEnvDuration("FLUSH_RETRY", 5*time.Second),
			ResponseGrace:      getEnvDuration("RESPONSE_GRACE", 5*time.Minute),
			SelectionTolerance: getEnvDuration("SELECTION_TOLERANCE", 5*time.Minute),
		},
	}
	if cfg.Session.Tick <= 0 {
		return nil, fmt.Errorf("SESSION_TICK_INTERVAL must be positive, got %s", cfg.Session.Tick)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
