package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Minio     MinioConfig               `yaml:"minio"`
	Redis     RedisConfig               `yaml:"redis"`
	Worker    WorkerConfig              `yaml:"worker"`
	Scan      ScanConfig                `yaml:"scan"`
	OpenAI    OpenAIConfig              `yaml:"openai"`
	Auth      AuthConfig                `yaml:"auth"`
	RateLimit RateLimitConfig           `yaml:"rateLimit"`
	Logger    LoggerConfig              `yaml:"logger"`
	Webhook   WebhookConfig             `yaml:"webhook"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Schedules []ScheduleConfig          `yaml:"schedules"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	CORSOrigins  []string      `yaml:"corsOrigins"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // postgres | mysql
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"sslMode"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"useSSL"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

type WorkerConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	Token       string        `yaml:"token"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type AuthConfig struct {
	// workspace id -> API key
	APIKeys map[string]string `yaml:"apiKeys"`
	// AdminKey guards credit grants; grants are disabled when empty.
	AdminKey string `yaml:"adminKey"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
}

type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"` // host:port of the OTLP/HTTP collector
	ServiceName string  `yaml:"serviceName"`
	SampleRate  float64 `yaml:"sampleRate"`
	Insecure    bool    `yaml:"insecure"`
}

type ProviderConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	CreditCost *int   `yaml:"creditCost"`
	MinTier    string `yaml:"minTier"`
}

type ScheduleConfig struct {
	Name       string   `yaml:"name"`
	Workspace  string   `yaml:"workspace"`
	Cron       string   `yaml:"cron"`
	TargetType string   `yaml:"targetType"`
	Target     string   `yaml:"target"`
	Providers  []string `yaml:"providers"`
}

// Load baca file config.yaml, lalu override secret dari env
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(&c.Database.Password, "DATABASE_PASSWORD")
	setString(&c.Database.Host, "DATABASE_HOST")
	setString(&c.Worker.BaseURL, "WORKER_BASE_URL")
	setString(&c.Worker.Token, "WORKER_TOKEN")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Webhook.Secret, "WEBHOOK_SECRET")
	setString(&c.Auth.AdminKey, "ADMIN_API_KEY")
	setString(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Logger.Level, "LOG_LEVEL")
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 24 * time.Hour
	}
	if c.Worker.Timeout == 0 {
		c.Worker.Timeout = 120 * time.Second
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 7
	}
	if c.Scan.Timeout == 0 {
		c.Scan.Timeout = c.Worker.Timeout + 60*time.Second
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "footprint"
	}
	if c.Telemetry.SampleRate <= 0 || c.Telemetry.SampleRate > 1 {
		c.Telemetry.SampleRate = 1
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or mysql, got %q", c.Database.Driver))
	}
	if c.Worker.BaseURL != "" {
		if u, err := url.Parse(c.Worker.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("worker.baseURL is not a valid URL: %q", c.Worker.BaseURL))
		}
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("worker.concurrency must be at least 1"))
	}
	if c.Scan.Timeout < c.Worker.Timeout {
		errs = append(errs, errors.New("scan.timeout must not be shorter than worker.timeout"))
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required when minio is enabled"))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Cron) == "" || s.Workspace == "" || s.Target == "" {
			errs = append(errs, fmt.Errorf("schedules[%d]: cron, workspace and target are required", i))
		}
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection URL.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}

// DSN returns the DSN for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "mysql" {
		return c.MySQLDSN()
	}
	return c.PostgresDSN()
}
