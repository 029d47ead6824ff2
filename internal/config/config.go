package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Storage  StorageConfig  `json:"storage"`
	Email    EmailConfig    `json:"email"`
	Events   EventsConfig   `json:"events"`
	Cache    CacheConfig    `json:"cache"`
	Security SecurityConfig `json:"security"`
	Uploads  UploadsConfig  `json:"uploads"`
	Workers  WorkersConfig  `json:"workers"`
	Logging  LoggingConfig  `json:"logging"`
	CORS     CORSConfig     `json:"cors"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	AutoMigrate    bool          `json:"auto_migrate"`
}

// StorageConfig describes the S3-compatible bucket holding uploads and PDFs
type StorageConfig struct {
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	PublicBaseURL   string `json:"public_base_url"`
	UsePathStyle    bool   `json:"use_path_style"`
}

// EmailConfig configures SES delivery. Empty FromAddress disables email.
type EmailConfig struct {
	Region      string `json:"region"`
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
	PortalURL   string `json:"portal_url"`
}

// EventsConfig configures the SNS topic for domain events. Empty TopicARN disables publishing.
type EventsConfig struct {
	Region   string `json:"region"`
	TopicARN string `json:"topic_arn"`
}

// CacheConfig configures the handover view cache
type CacheConfig struct {
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"redis_password"`
	RedisDB       int           `json:"redis_db"`
	Prefix        string        `json:"prefix"`
	MaxStaleness  time.Duration `json:"max_staleness"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret     string        `json:"jwt_secret"`
	TokenTTL      time.Duration `json:"token_ttl"`
	AdminEmail    string        `json:"admin_email"`
	AdminPassword string        `json:"admin_password"`
}

// UploadsConfig
type UploadsConfig struct {
	MaxBytes int64 `json:"max_bytes"`
}

// WorkersConfig
type WorkersConfig struct {
	PDFConcurrency   int    `json:"pdf_concurrency"`
	PDFQueueSize     int    `json:"pdf_queue_size"`
	PDFSweepSchedule string `json:"pdf_sweep_schedule"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// CORSConfig
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "owner_portal",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
			AutoMigrate:    true,
		},
		Storage: StorageConfig{
			Region: "us-east-1",
		},
		Cache: CacheConfig{
			Prefix:       "owner-portal",
			MaxStaleness: 30 * time.Second,
		},
		Security: SecurityConfig{
			TokenTTL: 12 * time.Hour,
		},
		Uploads: UploadsConfig{
			MaxBytes: 10 << 20,
		},
		Workers: WorkersConfig{
			PDFConcurrency:   2,
			PDFQueueSize:     64,
			PDFSweepSchedule: "@every 5m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret (JWT_SECRET) is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive")
	}
	if c.Workers.PDFConcurrency <= 0 {
		c.Workers.PDFConcurrency = 1
	}
	return nil
}

func overrideWithEnv(config *Config) {
	setString(&config.Server.Host, "SERVER_HOST")
	setInt(&config.Server.Port, "SERVER_PORT")

	setString(&config.Database.Host, "DATABASE_HOST")
	setInt(&config.Database.Port, "DATABASE_PORT")
	setString(&config.Database.User, "DATABASE_USER")
	setString(&config.Database.Password, "DATABASE_PASSWORD")
	setString(&config.Database.DBName, "DATABASE_DBNAME")
	setString(&config.Database.SSLMode, "DATABASE_SSLMODE")

	setString(&config.Storage.Bucket, "STORAGE_BUCKET")
	setString(&config.Storage.Region, "STORAGE_REGION")
	setString(&config.Storage.Endpoint, "STORAGE_ENDPOINT")
	setString(&config.Storage.AccessKeyID, "STORAGE_ACCESS_KEY_ID")
	setString(&config.Storage.SecretAccessKey, "STORAGE_SECRET_ACCESS_KEY")
	setString(&config.Storage.PublicBaseURL, "STORAGE_PUBLIC_BASE_URL")

	setString(&config.Email.Region, "EMAIL_REGION")
	setString(&config.Email.FromAddress, "EMAIL_FROM_ADDRESS")
	setString(&config.Email.PortalURL, "PORTAL_URL")

	setString(&config.Events.Region, "EVENTS_REGION")
	setString(&config.Events.TopicARN, "EVENTS_TOPIC_ARN")

	setString(&config.Cache.RedisAddr, "REDIS_ADDR")
	setString(&config.Cache.RedisPassword, "REDIS_PASSWORD")
	setInt(&config.Cache.RedisDB, "REDIS_DB")

	setString(&config.Security.JWTSecret, "JWT_SECRET")
	setString(&config.Security.AdminEmail, "ADMIN_EMAIL")
	setString(&config.Security.AdminPassword, "ADMIN_PASSWORD")

	setString(&config.Logging.Level, "LOG_LEVEL")

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = splitList(origins)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
