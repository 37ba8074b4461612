package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Storage       StorageConfig       `json:"storage"`
	Database      DatabaseConfig      `json:"database"`
	Blockchain    BlockchainConfig    `json:"blockchain"`
	Logging       LoggingConfig       `json:"logging"`
	Notifications NotificationsConfig `json:"notifications"`
	Backup        BackupConfig        `json:"backup"`
	Certificates  CertificatesConfig  `json:"certificates"`
	Metrics       MetricsConfig       `json:"metrics"`
	Alerts        AlertsConfig        `json:"alerts"`
	AWS           AWSConfig           `json:"aws"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" env:"SERVER_HOST"`
	Port            int           `json:"port" env:"SERVER_PORT"`
	Mode            string        `json:"mode" env:"GIN_MODE"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects the entity store backend
type StorageConfig struct {
	Driver     string `json:"driver" env:"STORAGE_DRIVER"`
	SQLitePath string `json:"sqlite_path" env:"SQLITE_PATH"`
	Seed       bool   `json:"seed" env:"STORAGE_SEED"`
}

// DatabaseConfig represents Postgres connection settings. URL wins over the
// individual fields when set.
type DatabaseConfig struct {
	URL      string `json:"url" env:"DATABASE_URL"`
	Host     string `json:"host" env:"DATABASE_HOST"`
	Port     int    `json:"port" env:"DATABASE_PORT"`
	User     string `json:"user" env:"DATABASE_USER"`
	Password string `json:"password" env:"DATABASE_PASSWORD"`
	DBName   string `json:"db_name" env:"DATABASE_DBNAME"`
	SSLMode  string `json:"ssl_mode" env:"DATABASE_SSLMODE"`
}

// BlockchainConfig controls the simulated chain
type BlockchainConfig struct {
	Network     string `json:"network" env:"BLOCKCHAIN_NETWORK"`
	TokenPrefix string `json:"token_prefix" env:"TOKEN_PREFIX"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level" env:"LOG_LEVEL"`
	Development bool   `json:"development" env:"LOG_DEVELOPMENT"`
}

// NotificationsConfig
type NotificationsConfig struct {
	WebSocketEnabled bool   `json:"websocket_enabled" env:"WEBSOCKET_ENABLED"`
	SNSTopicARN      string `json:"sns_topic_arn" env:"SNS_TOPIC_ARN"`
}

// BackupConfig schedules snapshot uploads to S3
type BackupConfig struct {
	Enabled  bool   `json:"enabled" env:"BACKUP_ENABLED"`
	Schedule string `json:"schedule" env:"BACKUP_SCHEDULE"`
	Bucket   string `json:"bucket" env:"BACKUP_BUCKET"`
	Prefix   string `json:"prefix" env:"BACKUP_PREFIX"`
	// Retain keeps the newest N backups; 0 keeps everything
	Retain int `json:"retain" env:"BACKUP_RETAIN"`
	// RestoreKey is loaded into the store at startup; "latest" picks the newest backup
	RestoreKey string `json:"restore_key" env:"BACKUP_RESTORE_KEY"`
}

// CertificatesConfig controls retirement certificate rendering
type CertificatesConfig struct {
	Issuer     string `json:"issuer" env:"CERTIFICATE_ISSUER"`
	SigningKey string `json:"-" env:"CERTIFICATE_SIGNING_KEY"`
	Watermark  string `json:"watermark" env:"CERTIFICATE_WATERMARK"`
}

// MetricsConfig
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"METRICS_ENABLED"`
	Path    string `json:"path" env:"METRICS_PATH"`
}

// AlertsConfig controls sensor alert evaluation. An empty RulesFile uses the
// built-in rules.
type AlertsConfig struct {
	Enabled   bool   `json:"enabled" env:"ALERTS_ENABLED"`
	RulesFile string `json:"rules_file" env:"ALERTS_RULES_FILE"`
}

// AWSConfig is shared by the SNS publisher and the backup uploader
type AWSConfig struct {
	Region          string `json:"region" env:"AWS_REGION"`
	Endpoint        string `json:"endpoint" env:"AWS_ENDPOINT_URL"`
	AccessKeyID     string `json:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `json:"use_path_style" env:"AWS_S3_USE_PATH_STYLE"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     DriverMemory,
			SQLitePath: "data/registry.db",
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "blue_carbon_registry",
			SSLMode: "disable",
		},
		Blockchain: BlockchainConfig{
			Network:     "ethereum",
			TokenPrefix: "BCR",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Notifications: NotificationsConfig{
			WebSocketEnabled: true,
		},
		Backup: BackupConfig{
			Schedule: "0 0 */6 * * *",
			Prefix:   "registry-backups",
			Retain:   10,
		},
		Certificates: CertificatesConfig{
			Issuer: "Blue Carbon Registry",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Alerts: AlertsConfig{
			Enabled: true,
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
	}
}

// LoadConfig loads configuration from file, .env and environment variables,
// in increasing order of precedence.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	// Load from file if exists
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// Override with environment variables
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be one of memory, sqlite, postgres; got %q", c.Storage.Driver))
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if (c.Backup.Enabled || c.Backup.RestoreKey != "") && c.Backup.Bucket == "" {
		errs = append(errs, errors.New("backup.bucket is required when backups are enabled"))
	}
	if c.Backup.Retain < 0 {
		errs = append(errs, fmt.Errorf("backup.retain must not be negative; got %d", c.Backup.Retain))
	}
	return errors.Join(errs...)
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
