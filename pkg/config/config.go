package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Service   string          `yaml:"-"`
	App       AppConfig       `yaml:"app"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type AppConfig struct {
	Port     string `yaml:"port" validate:"required,numeric"`
	Env      string `yaml:"env" validate:"oneof=local dev prod test"`
	LogLevel string `yaml:"log_level" validate:"oneof=trace debug info warn error"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" validate:"required"`
	BcryptCost    int    `yaml:"bcrypt_cost" validate:"gte=4,lte=31"`
	AdminEmail    string `yaml:"admin_email" validate:"omitempty,email"`
	AdminPassword string `yaml:"admin_password" validate:"required_with=AdminEmail"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory postgres"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

// DSN is the keyword/value form accepted by both pgx and lib/pq.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type CatalogConfig struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewConfig builds the configuration for the named service. Sources, lowest
// precedence first: defaults, the YAML file in CONFIG_FILE, a .env file, the
// process environment.
func NewConfig(service string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults(service)

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

func defaults(service string) *Config {
	cfg := &Config{Service: service}
	cfg.App.Port = "8080"
	cfg.App.Env = "local"
	cfg.App.LogLevel = "info"
	cfg.Auth.BcryptCost = 10
	cfg.Storage.Driver = StorageMemory
	cfg.Postgres.Port = "5432"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 1
	cfg.Postgres.MaxConnLifetime = time.Hour
	cfg.Catalog.Timeout = 5 * time.Second
	cfg.Kafka.Topic = "orders"
	return cfg
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString("APP_PORT", &c.App.Port)
	setString("APP_ENV", &c.App.Env)
	setString("LOG_LEVEL", &c.App.LogLevel)

	setString("JWT_SECRET", &c.Auth.JWTSecret)
	setString("ADMIN_EMAIL", &c.Auth.AdminEmail)
	setString("ADMIN_PASSWORD", &c.Auth.AdminPassword)
	if err := setInt("BCRYPT_COST", &c.Auth.BcryptCost); err != nil {
		return err
	}

	setString("STORAGE_DRIVER", &c.Storage.Driver)

	setString("DB_HOST", &c.Postgres.Host)
	setString("DB_PORT", &c.Postgres.Port)
	setString("DB_USER", &c.Postgres.User)
	setString("DB_PASSWORD", &c.Postgres.Password)
	setString("DB_NAME", &c.Postgres.DBName)
	setString("DB_SSLMODE", &c.Postgres.SSLMode)
	if v, ok := os.LookupEnv("DB_MAX_CONNS"); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("DB_MAX_CONNS must be an integer: %w", err)
		}
		c.Postgres.MaxConns = int32(n)
	}

	setString("CATALOG_BASE_URL", &c.Catalog.BaseURL)
	if err := setDuration("CATALOG_TIMEOUT", &c.Catalog.Timeout); err != nil {
		return err
	}

	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	if err := setInt("REDIS_DB", &c.Redis.DB); err != nil {
		return err
	}

	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	setString("KAFKA_TOPIC", &c.Kafka.Topic)

	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	return nil
}

// Validate checks field rules and the cross-field requirements that depend on
// the service and the storage driver.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Storage.Driver == StoragePostgres {
		missing := make([]string, 0)
		for key, value := range map[string]string{
			"DB_HOST": c.Postgres.Host,
			"DB_USER": c.Postgres.User,
			"DB_NAME": c.Postgres.DBName,
		} {
			if value == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("invalid config: %s required when STORAGE_DRIVER=postgres", strings.Join(missing, ", "))
		}
	}

	if c.Service == "order-service" && c.Catalog.BaseURL == "" {
		return errors.New("invalid config: CATALOG_BASE_URL is required")
	}

	return nil
}

func setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be a duration such as 5s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
