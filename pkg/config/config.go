package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	SchoolAPI SchoolAPIConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Cache     ReferenceCacheConfig
	Audit     AuditConfig
	Wizard    WizardConfig
	Refresh   RefreshConfig
}

// SchoolAPIConfig points at the remote school administration API that owns
// validation rules, assignments and capacity.
type SchoolAPIConfig struct {
	BaseURL      string
	Timeout      time.Duration
	ServiceToken string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReferenceCacheConfig governs caching of read-only reference data
// (subjects, academic years, locations, teacher profiles).
type ReferenceCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AuditConfig toggles the Postgres-backed submission audit trail.
type AuditConfig struct {
	Enabled bool
}

// WizardConfig tunes the bulk assignment wizard and single-assignment drafts.
type WizardConfig struct {
	SessionTTL              time.Duration
	SweepInterval           time.Duration
	NearCapacityRatio       float64
	RefreshBaseBeforeCommit bool
}

// RefreshConfig configures the post-commit refresh worker pool.
type RefreshConfig struct {
	Workers int
	Retries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.SchoolAPI = SchoolAPIConfig{
		BaseURL:      strings.TrimRight(v.GetString("SCHOOL_API_BASE_URL"), "/"),
		Timeout:      parseDuration(v.GetString("SCHOOL_API_TIMEOUT"), 10*time.Second),
		ServiceToken: v.GetString("SCHOOL_API_SERVICE_TOKEN"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = ReferenceCacheConfig{
		Enabled: v.GetBool("ENABLE_REFERENCE_CACHE"),
		TTL:     parseDuration(v.GetString("REFERENCE_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Audit = AuditConfig{Enabled: v.GetBool("ENABLE_SUBMISSION_AUDIT")}

	ratio := v.GetFloat64("WIZARD_NEAR_CAPACITY_RATIO")
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}
	cfg.Wizard = WizardConfig{
		SessionTTL:              parseDuration(v.GetString("WIZARD_SESSION_TTL"), 2*time.Hour),
		SweepInterval:           parseDuration(v.GetString("WIZARD_SWEEP_INTERVAL"), 5*time.Minute),
		NearCapacityRatio:       ratio,
		RefreshBaseBeforeCommit: v.GetBool("WIZARD_REFRESH_BASE_BEFORE_COMMIT"),
	}

	cfg.Refresh = RefreshConfig{
		Workers: v.GetInt("REFRESH_WORKERS"),
		Retries: v.GetInt("REFRESH_RETRIES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("SCHOOL_API_BASE_URL", "http://localhost:8000/api")
	v.SetDefault("SCHOOL_API_TIMEOUT", "10s")
	v.SetDefault("SCHOOL_API_SERVICE_TOKEN", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "assignment_engine")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_REFERENCE_CACHE", false)
	v.SetDefault("REFERENCE_CACHE_TTL", "10m")
	v.SetDefault("ENABLE_SUBMISSION_AUDIT", false)

	v.SetDefault("WIZARD_SESSION_TTL", "2h")
	v.SetDefault("WIZARD_SWEEP_INTERVAL", "5m")
	v.SetDefault("WIZARD_NEAR_CAPACITY_RATIO", 0.9)
	v.SetDefault("WIZARD_REFRESH_BASE_BEFORE_COMMIT", true)

	v.SetDefault("REFRESH_WORKERS", 1)
	v.SetDefault("REFRESH_RETRIES", 3)
}

// SetConfigFile bypasses ConfigFileNotFoundError, so a missing .env surfaces
// as a plain fs error.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
