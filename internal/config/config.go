package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/chedeval/progeval/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Guard     GuardConfig
	Broadcast BroadcastConfig
	Tracing   TracingConfig
	Catalog   CatalogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig describes the relational store. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver           string
	Host             string
	Port             string
	User             string
	Password         string
	Name             string
	SSLMode          string
	SQLitePath       string
	MaxOpenConns     int
	MaxIdleConns     int
	StatementTimeout time.Duration
}

// DSN builds a postgres connection URL with a server-side statement timeout.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=progeval&options=-c%%20statement_timeout=%d",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode, d.StatementTimeout.Milliseconds(),
	)
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	URLExpiry time.Duration
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// GuardConfig holds per-call-site deadlines for the query guard.
type GuardConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type BroadcastConfig struct {
	ChannelPrefix string
}

type TracingConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

type CatalogConfig struct {
	SeedFile string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_SSLMODE", "require")
	v.SetDefault("DATABASE_SQLITE_PATH", "progeval.db")
	v.SetDefault("DATABASE_POOL_SIZE", 10)
	v.SetDefault("DATABASE_MAX_IDLE", 2)
	v.SetDefault("DATABASE_STATEMENT_TIMEOUT_MS", 20000)
	v.SetDefault("MONGODB_DATABASE", "progeval")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("MINIO_BUCKET", "progeval")
	v.SetDefault("MINIO_URL_EXPIRY_MINUTES", 60)
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("GUARD_READ_TIMEOUT_MS", 5000)
	v.SetDefault("GUARD_WRITE_TIMEOUT_MS", 8000)
	v.SetDefault("BROADCAST_CHANNEL_PREFIX", "evaluation-")
	v.SetDefault("OTEL_SERVICE_NAME", "progeval")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:           v.GetString("DATABASE_DRIVER"),
			Host:             v.GetString("DATABASE_HOST"),
			Port:             v.GetString("DATABASE_PORT"),
			User:             v.GetString("DATABASE_USER"),
			Password:         os.Getenv("DATABASE_PASSWORD"),
			Name:             v.GetString("DATABASE_NAME"),
			SSLMode:          v.GetString("DATABASE_SSLMODE"),
			SQLitePath:       v.GetString("DATABASE_SQLITE_PATH"),
			MaxOpenConns:     v.GetInt("DATABASE_POOL_SIZE"),
			MaxIdleConns:     v.GetInt("DATABASE_MAX_IDLE"),
			StatementTimeout: time.Duration(v.GetInt("DATABASE_STATEMENT_TIMEOUT_MS")) * time.Millisecond,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			URLExpiry: time.Duration(v.GetInt("MINIO_URL_EXPIRY_MINUTES")) * time.Minute,
		},
		Keycloak: KeycloakConfig{
			URL:          v.GetString("KEYCLOAK_URL"),
			Realm:        v.GetString("KEYCLOAK_REALM"),
			ClientID:     v.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: v.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			AccessTokenTTL:  time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(v.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Guard: GuardConfig{
			ReadTimeout:  time.Duration(v.GetInt("GUARD_READ_TIMEOUT_MS")) * time.Millisecond,
			WriteTimeout: time.Duration(v.GetInt("GUARD_WRITE_TIMEOUT_MS")) * time.Millisecond,
		},
		Broadcast: BroadcastConfig{
			ChannelPrefix: v.GetString("BROADCAST_CHANNEL_PREFIX"),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		},
		Catalog: CatalogConfig{
			SeedFile: v.GetString("CATALOG_SEED_FILE"),
		},
	}

	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q (want postgres or sqlite)", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && (cfg.Database.Host == "" || cfg.Database.Name == "") {
		return nil, fmt.Errorf("DATABASE_HOST and DATABASE_NAME are required for the postgres driver")
	}
	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is not set; reviewer login is disabled until a secure value is provided")
	}

	return cfg, nil
}
