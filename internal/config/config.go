package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	DBDriver          string        `yaml:"db_driver"`
	DBDSN             string        `yaml:"db_dsn"`
	DBMaxOpenConns    int           `yaml:"db_max_open_conns"`
	DBMaxIdleConns    int           `yaml:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `yaml:"db_conn_max_lifetime"`

	// Empty RedisAddr disables idempotency keys.
	RedisAddr      string        `yaml:"redis_addr"`
	RedisPoolSize  int           `yaml:"redis_pool_size"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`

	// Empty KafkaBrokers disables shipment events.
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	// Empty OtelEndpoint keeps tracing in-process.
	OtelEndpoint string `yaml:"otel_endpoint"`
	ServiceName  string `yaml:"service_name"`

	StoreTimeout  time.Duration `yaml:"store_timeout"`
	CommitTimeout time.Duration `yaml:"commit_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:           ":8080",
		GRPCAddr:           ":50051",
		DBDriver:           "mysql",
		DBDSN:              "root:root@tcp(localhost:3306)/inventory",
		DBMaxOpenConns:     50,
		DBMaxIdleConns:     25,
		DBConnMaxLifetime:  5 * time.Minute,
		RedisPoolSize:      100,
		IdempotencyTTL:     24 * time.Hour,
		KafkaTopic:         "shipments",
		ServiceName:        "inventory",
		StoreTimeout:       5 * time.Second,
		CommitTimeout:      10 * time.Second,
		LogLevel:           "info",
		LogFormat:          "json",
		CORSAllowedOrigins: []string{"*"},
	}
}

// Load reads .env if present, then the YAML file named by CONFIG_FILE, then
// the environment. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.GRPCAddr, "GRPC_ADDR")
	setString(&c.DBDriver, "DB_DRIVER")
	setString(&c.DBDSN, "DB_DSN")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.KafkaTopic, "KAFKA_TOPIC")
	setString(&c.OtelEndpoint, "OTEL_ENDPOINT")
	setString(&c.ServiceName, "SERVICE_NAME")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setList(&c.KafkaBrokers, "KAFKA_BROKERS")
	setList(&c.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"DB_MAX_OPEN_CONNS", &c.DBMaxOpenConns},
		{"DB_MAX_IDLE_CONNS", &c.DBMaxIdleConns},
		{"REDIS_POOL_SIZE", &c.RedisPoolSize},
	} {
		if err := setInt(f.dst, f.key); err != nil {
			return err
		}
	}

	for _, f := range []struct {
		key string
		dst *time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", &c.DBConnMaxLifetime},
		{"IDEMPOTENCY_TTL", &c.IdempotencyTTL},
		{"STORE_TIMEOUT", &c.StoreTimeout},
		{"COMMIT_TIMEOUT", &c.CommitTimeout},
	} {
		if err := setDuration(f.dst, f.key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "pgx", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be one of mysql, pgx, sqlite, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("DB_DSN is required")
	}
	if c.StoreTimeout <= 0 || c.CommitTimeout <= 0 {
		return errors.New("STORE_TIMEOUT and COMMIT_TIMEOUT must be positive")
	}
	if c.RedisAddr != "" && c.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0 {
		return errors.New("DB pool sizes cannot be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
