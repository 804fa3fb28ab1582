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

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StorePebble   = "pebble"
)

type AppConfig struct {
	Port      string `yaml:"port"`
	BaseURL   string `yaml:"base_url"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type StripeConfig struct {
	SecretKey      string        `yaml:"-"`
	WebhookSecret  string        `yaml:"-"`
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"-"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

type StoreConfig struct {
	Driver    string `yaml:"driver"`
	PebbleDir string `yaml:"pebble_dir"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type PricingConfig struct {
	BaseCents      int64            `yaml:"base_cents"`
	Currency       string           `yaml:"currency"`
	ProductName    string           `yaml:"product_name"`
	SizeSurcharge  map[string]int64 `yaml:"size_surcharge"`
	ColorSurcharge map[string]int64 `yaml:"color_surcharge"`
}

type LayoutConfig struct {
	MaxWidth int `yaml:"max_width"`
	MaxLines int `yaml:"max_lines"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Layout   LayoutConfig   `yaml:"layout"`
}

func defaults() Config {
	return Config{
		App: AppConfig{
			Port:      "8080",
			BaseURL:   "http://localhost:3000",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Stripe: StripeConfig{
			GatewayTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:    StoreMemory,
			PebbleDir: "data/orders",
		},
		Postgres: PostgresConfig{
			Port:            "5432",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MigrationsPath:  "migrations",
		},
		Kafka: KafkaConfig{
			Topic: "orders.completed",
		},
		Pricing: PricingConfig{
			BaseCents:   2999,
			Currency:    "usd",
			ProductName: "Custom Prompt Shirt",
		},
		Layout: LayoutConfig{
			MaxWidth: 20,
			MaxLines: 4,
		},
	}
}

// NewConfig loads .env (ENV_FILE, default ".env"), then the optional YAML
// file named by CONFIG_FILE, then applies environment overrides.
func NewConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	return Load(os.Getenv("CONFIG_FILE"))
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.BaseURL, "APP_BASE_URL")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	setString(&cfg.App.LogFormat, "LOG_FORMAT")

	setString(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	setString(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")

	setString(&cfg.Store.Driver, "STORE_DRIVER")
	setString(&cfg.Store.PebbleDir, "PEBBLE_DIR")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.MigrationsPath, "MIGRATIONS_PATH")

	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}

	if err := setInt32(&cfg.Postgres.MaxConns, "DB_MAX_CONNS"); err != nil {
		return err
	}
	if err := setInt32(&cfg.Postgres.MinConns, "DB_MIN_CONNS"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Postgres.MaxConnLifetime, "DB_MAX_CONN_LIFETIME"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Stripe.GatewayTimeout, "GATEWAY_TIMEOUT"); err != nil {
		return err
	}

	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Port == "" {
		errs = append(errs, errors.New("APP_PORT is required"))
	}
	if c.App.BaseURL == "" {
		errs = append(errs, errors.New("APP_BASE_URL is required"))
	}
	if c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.App.LogFormat))
	}
	if c.Stripe.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePebble:
		if c.Store.PebbleDir == "" {
			errs = append(errs, errors.New("PEBBLE_DIR is required for the pebble store"))
		}
	case StorePostgres:
		if c.Postgres.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required for the postgres store"))
		}
		if c.Postgres.User == "" {
			errs = append(errs, errors.New("DB_USER is required for the postgres store"))
		}
		if c.Postgres.DBName == "" {
			errs = append(errs, errors.New("DB_NAME is required for the postgres store"))
		}
		if c.Postgres.MinConns > c.Postgres.MaxConns {
			errs = append(errs, errors.New("DB_MIN_CONNS cannot exceed DB_MAX_CONNS"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.Pricing.BaseCents <= 0 {
		errs = append(errs, errors.New("pricing.base_cents must be positive"))
	}
	if c.Layout.MaxWidth < 2 || c.Layout.MaxLines < 1 {
		errs = append(errs, errors.New("layout limits must be at least 2 wide and 1 line"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt32(dst *int32, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = int32(n)
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
