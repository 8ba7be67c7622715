// Package config loads service configuration from .env, an optional YAML file
// and the process environment, in that order of precedence (lowest first).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Lock      LockConfig      `yaml:"lock"`
	NATS      NATSConfig      `yaml:"nats"`
	Directory DirectoryConfig `yaml:"directory"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type GRPCConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	SSLMode     string        `yaml:"sslmode"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnTime time.Duration `yaml:"max_conn_time"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	HealthCheck time.Duration `yaml:"health_check"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
	AutoMigrate bool          `yaml:"auto_migrate"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // postgres | memory
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LockConfig struct {
	Driver      string        `yaml:"driver"` // redis | local
	TTL         time.Duration `yaml:"ttl"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type DirectoryConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "be-doc-validations",
			Version:     "0.1.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Server: ServerConfig{
			Port:            8086,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		GRPC: GRPCConfig{Port: 9086},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			Database:    "doc_validations",
			SSLMode:     "disable",
			MaxConns:    20,
			MinConns:    2,
			MaxConnTime: time.Hour,
			MaxIdleTime: 30 * time.Minute,
			HealthCheck: time.Minute,
			LockTimeout: 3 * time.Second,
		},
		Store: StoreConfig{Driver: "postgres"},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Lock: LockConfig{
			Driver:      "local",
			TTL:         30 * time.Second,
			WaitTimeout: 5 * time.Second,
		},
		NATS: NATSConfig{
			Stream:        "DOC_VALIDATIONS",
			SubjectPrefix: "notifications.docs",
		},
	}
}

// Load builds the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	num32 := func(key string, dst *int32) {
		n := int(*dst)
		num(key, &n)
		*dst = int32(n)
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SERVICE_NAME", &c.Service.Name)
	str("SERVICE_VERSION", &c.Service.Version)
	str("ENVIRONMENT", &c.Service.Environment)
	str("LOG_LEVEL", &c.Service.LogLevel)

	num("HTTP_PORT", &c.Server.Port)
	dur("HTTP_READ_TIMEOUT", &c.Server.ReadTimeout)
	dur("HTTP_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	dur("HTTP_IDLE_TIMEOUT", &c.Server.IdleTimeout)
	dur("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	dur("REQUEST_TIMEOUT", &c.Server.RequestTimeout)

	num("GRPC_PORT", &c.GRPC.Port)

	str("DB_HOST", &c.Database.Host)
	num("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Database)
	str("DB_SSLMODE", &c.Database.SSLMode)
	num32("DB_MAX_CONNS", &c.Database.MaxConns)
	num32("DB_MIN_CONNS", &c.Database.MinConns)
	dur("DB_MAX_CONN_TIME", &c.Database.MaxConnTime)
	dur("DB_MAX_IDLE_TIME", &c.Database.MaxIdleTime)
	dur("DB_HEALTH_CHECK", &c.Database.HealthCheck)
	dur("DB_LOCK_TIMEOUT", &c.Database.LockTimeout)
	flag("DATABASE_AUTO_MIGRATE", &c.Database.AutoMigrate)

	str("STORE_DRIVER", &c.Store.Driver)

	str("REDIS_ADDRESS", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)

	str("LOCK_DRIVER", &c.Lock.Driver)
	dur("LOCK_TTL", &c.Lock.TTL)
	dur("LOCK_WAIT_TIMEOUT", &c.Lock.WaitTimeout)

	str("NATS_URL", &c.NATS.URL)
	str("NATS_STREAM", &c.NATS.Stream)
	str("NATS_SUBJECT_PREFIX", &c.NATS.SubjectPrefix)

	str("DIRECTORY_GRPC_URL", &c.Directory.GRPCAddr)

	flag("TRACING_ENABLED", &c.Tracing.Enabled)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %v", errs)
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Lock.Driver {
	case "redis", "local":
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}
	if c.Lock.Driver == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis lock driver requires REDIS_ADDRESS")
	}
	if c.Lock.TTL <= 0 || c.Lock.WaitTimeout <= 0 {
		return fmt.Errorf("lock ttl and wait timeout must be positive")
	}
	if c.Server.Port <= 0 || c.GRPC.Port <= 0 {
		return fmt.Errorf("http and grpc ports must be positive")
	}
	return nil
}
