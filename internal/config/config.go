package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

var validate = validator.New()

type AppConfig struct {
	// Port of the aggregation protocol listener.
	Port int `yaml:"port" validate:"min=1,max=65535"`
	// AdminPort of the HTTP admin API (0 = disabled).
	AdminPort int `yaml:"admin_port" validate:"min=0,max=65535,nefield=Port"`

	Env string `yaml:"env" validate:"oneof=dev prod"`

	// Observation store retention.
	MaxObservations int           `yaml:"max_observations" validate:"min=1"`
	MaxAge          time.Duration `yaml:"max_age" validate:"gte=0"` // 0 = never expire

	// Producer liveness.
	IdleTimeout       time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	SweepInterval     time.Duration `yaml:"sweep_interval" validate:"gt=0"`
	IdleSweepInterval time.Duration `yaml:"idle_sweep_interval" validate:"gt=0"`

	MaxBodyBytes    int           `yaml:"max_body_bytes" validate:"min=1"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *AppConfig {
	return &AppConfig{
		Port:            4567,
		AdminPort:       8080,
		Env:             "prod",
		MaxObservations: 20,
		MaxAge:          30 * time.Second,
		IdleTimeout:     30 * time.Second,
		SweepInterval:   time.Second,
		MaxBodyBytes:    1 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from defaults, an optional YAML file at path,
// and environment variables (a .env file is honoured), in that order.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	var err error
	if cfg.Port, err = getenvInt("PORT", cfg.Port); err != nil {
		return nil, err
	}
	if cfg.AdminPort, err = getenvInt("ADMIN_PORT", cfg.AdminPort); err != nil {
		return nil, err
	}
	cfg.Env = getenvDefault("APP_ENV", cfg.Env)
	if cfg.MaxObservations, err = getenvInt("STORE_MAX_OBSERVATIONS", cfg.MaxObservations); err != nil {
		return nil, err
	}
	if cfg.MaxAge, err = getenvDuration("STORE_MAX_AGE", cfg.MaxAge); err != nil {
		return nil, err
	}
	if cfg.IdleTimeout, err = getenvDuration("IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getenvDuration("SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.IdleSweepInterval, err = getenvDuration("IDLE_SWEEP_INTERVAL", cfg.IdleSweepInterval); err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes, err = getenvInt("MAX_BODY_BYTES", cfg.MaxBodyBytes); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getenvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return nil, err
	}

	// Connection sweeps follow the idle timeout unless configured apart.
	if cfg.IdleSweepInterval == 0 {
		cfg.IdleSweepInterval = cfg.IdleTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
