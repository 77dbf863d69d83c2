package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"shareit/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Events     EventsConfig     `yaml:"events"`
	RateLimit  UserRateLimit    `yaml:"user_rate_limit"`
	Exports    ExportConfig     `yaml:"exports"`
	SeedFile   string           `yaml:"seed_file"`
}

// BookingConfig switches the behaviours the lending rules leave open.
type BookingConfig struct {
	RejectOverlaps            bool `yaml:"reject_overlaps"`
	ProjectionExcludeRejected bool `yaml:"projection_exclude_rejected"`
}

type EventsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	RedisList      string        `yaml:"redis_list"`
	DeadLetterList string        `yaml:"dead_letter_list"`
	QueueSize      int           `yaml:"queue_size"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
}

// UserRateLimit caps write requests per caller id.
type UserRateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	MaxRows int `yaml:"max_rows"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// IsPostgres reports whether the store runs on postgres.
func (d DatabaseConfig) IsPostgres() bool {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql", "pgx":
		return true
	}
	return false
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if !d.IsPostgres() {
		return d.Path
	}
	p := d.Postgres
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.DBName,
	}
	q := u.Query()
	q.Set("sslmode", p.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres", "postgresql", "pgx":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	for name, port := range map[string]int{
		"api.http.port":              c.API.HTTP.Port,
		"api.grpc.port":              c.API.GRPC.Port,
		"monitoring.prometheus_port": c.Monitoring.PrometheusPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}

	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth enabled but no api_keys configured")
	}
	seen := make(map[string]bool, len(c.API.Auth.APIKeys))
	for _, k := range c.API.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api key %q is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client %q", k.Name)
		}
		seen[k.Key] = true
	}

	if c.Events.Enabled {
		if c.Redis.Address == "" {
			return errors.New("events require redis.address")
		}
		if c.Events.RedisList == c.Events.DeadLetterList {
			return errors.New("events redis_list and dead_letter_list must differ")
		}
	}

	if c.Backup.Enabled && c.Database.IsPostgres() {
		return errors.New("backups are only supported for sqlite")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "shareit"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.IsPostgres() {
		if c.Database.Postgres.Port == 0 {
			c.Database.Postgres.Port = 5432
		}
		if c.Database.Postgres.SSLMode == "" {
			c.Database.Postgres.SSLMode = "disable"
		}
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 9091
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	if c.Events.RedisList == "" {
		c.Events.RedisList = "shareit:events"
	}
	if c.Events.DeadLetterList == "" {
		c.Events.DeadLetterList = "shareit:events:dead"
	}
	if c.Events.QueueSize <= 0 {
		c.Events.QueueSize = models.EventQueueSize
	}
	if c.Events.MaxRetries <= 0 {
		c.Events.MaxRetries = 3
	}
	if c.Events.BaseDelay <= 0 {
		c.Events.BaseDelay = 200 * time.Millisecond
	}
	if c.Events.MaxDelay <= 0 {
		c.Events.MaxDelay = 5 * time.Second
	}

	// negative requests switch per-user limiting off
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = models.RateLimitRequests
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = models.RateLimitWindow * time.Second
	}

	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}

	if c.Exports.MaxRows <= 0 {
		c.Exports.MaxRows = 10000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}
