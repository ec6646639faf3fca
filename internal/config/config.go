package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type AppConfig struct {
	Name            string        `yaml:"name"             env:"APP_NAME"             env-default:"pixel-guestbook"`
	Env             string        `yaml:"env"              env:"APP_ENV"              env-default:"development"`
	Port            string        `yaml:"port"             env:"APP_PORT"             env-default:"3000"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"APP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	WorkerCount     int           `yaml:"worker_count"     env:"WORKER_COUNT"         env-default:"3"`
	WorkerMetrics   string        `yaml:"worker_metrics"   env:"WORKER_METRICS_ADDR"  env-default:":8088"`
}

type DBConfig struct {
	Host     string `yaml:"host"     env:"DB_HOST"     env-default:"localhost"`
	Port     string `yaml:"port"     env:"DB_PORT"     env-default:"5432"`
	User     string `yaml:"user"     env:"DB_USER"     env-default:"postgres"`
	Password string `yaml:"password" env:"DB_PASSWORD" env-default:"postgres"`
	Name     string `yaml:"name"     env:"DB_NAME"     env-default:"guestbook"`
	SSLMode  string `yaml:"sslmode"  env:"DB_SSLMODE"  env-default:"disable"`
}

// RedisConfig is optional: an empty Host disables the entry cache and the
// auth rate limiter.
type RedisConfig struct {
	Host     string `yaml:"host"     env:"REDIS_HOST"`
	Port     string `yaml:"port"     env:"REDIS_PORT"     env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"       env-default:"0"`
}

func (r RedisConfig) Enabled() bool { return r.Host != "" }

// RabbitMQConfig is optional: an empty URL disables entry event publishing.
type RabbitMQConfig struct {
	URL   string `yaml:"url"   env:"RABBITMQ_URL"`
	Queue string `yaml:"queue" env:"RABBITMQ_QUEUE" env-default:"guestbook_events"`
}

func (r RabbitMQConfig) Enabled() bool { return r.URL != "" }

type CacheConfig struct {
	EntryListTTL time.Duration `yaml:"entry_list_ttl" env:"CACHE_ENTRY_LIST_TTL" env-default:"30s"`
}

type RateLimitConfig struct {
	Capacity   int     `yaml:"capacity"    env:"RATE_LIMIT_CAPACITY"    env-default:"5"`
	RefillRate float64 `yaml:"refill_rate" env:"RATE_LIMIT_REFILL_RATE" env-default:"0.5"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Load reads configuration from environment variables, optionally layered
// over a YAML file named by CONFIG_PATH. Priority: ENV > YAML > defaults.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.App.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("app.port must be a number in 1..65535 (got %q)", c.App.Port)
	}
	if c.DB.Host == "" {
		return fmt.Errorf("db.host is required")
	}
	if c.DB.Name == "" {
		return fmt.Errorf("db.name is required")
	}
	if c.RabbitMQ.Enabled() && c.RabbitMQ.Queue == "" {
		return fmt.Errorf("rabbitmq.queue is required when rabbitmq.url is set")
	}
	if c.RateLimit.Capacity <= 0 {
		return fmt.Errorf("rate_limit.capacity must be > 0 (got %d)", c.RateLimit.Capacity)
	}
	if c.RateLimit.RefillRate <= 0 {
		return fmt.Errorf("rate_limit.refill_rate must be > 0 (got %v)", c.RateLimit.RefillRate)
	}
	if c.App.WorkerCount <= 0 {
		return fmt.Errorf("app.worker_count must be > 0 (got %d)", c.App.WorkerCount)
	}
	return nil
}

// Addr is the listen address of the API server.
func (c *Config) Addr() string {
	return ":" + c.App.Port
}
