package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingParam marks a fatal configuration error: a required connection
// parameter is absent. Raised before any network or storage activity.
var ErrMissingParam = errors.New("missing required configuration")

// Config carries everything one run needs. It is constructed once per run
// and passed to each component; nothing reads ambient global state.
type Config struct {
	BaseURL string

	MaxPages          int
	Workers           int
	GlobalConcurrency int
	DomainConcurrency int
	RenderPages       int

	RequestTimeout time.Duration
	RenderTimeout  time.Duration

	StartDelay        time.Duration
	MinDelay          time.Duration
	MaxDelay          time.Duration
	TargetConcurrency float64

	MaxRetries       int
	RetryStatusCodes []int

	Headless  bool
	ExportDir string
	DebugDir  string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://www.imot.bg",
		MaxPages:          50,
		Workers:           4,
		GlobalConcurrency: 8,
		DomainConcurrency: 4,
		RenderPages:       4,
		RequestTimeout:    90 * time.Second,
		RenderTimeout:     60 * time.Second,
		StartDelay:        3 * time.Second,
		MinDelay:          2500 * time.Millisecond,
		MaxDelay:          15 * time.Second,
		TargetConcurrency: 1.5,
		MaxRetries:        5,
		RetryStatusCodes:  []int{500, 502, 503, 504, 408, 429, 403, 404},
		Headless:          true,
		ExportDir:         "exports",
		DBHost:            "localhost",
		DBPort:            5432,
		DBSSLMode:         "disable",
	}
}

// Load builds the run configuration: defaults overlaid with the process
// environment (a .env file is honoured when present) and validated.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.DBHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.DBPort = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.DBUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.DBPassword = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.DBName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		c.DBSSLMode = v
	}
	if v := os.Getenv("SCRAPER_DEBUG_DIR"); v != "" {
		c.DebugDir = v
	}
	if v := os.Getenv("SCRAPER_EXPORT_DIR"); v != "" {
		c.ExportDir = v
	}
}

// Validate reports every missing required parameter at once.
func (c *Config) Validate() error {
	var missing []string
	if c.DBHost == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.DBUser == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DBPassword == "" {
		missing = append(missing, "DB_PASSWORD")
	}
	if c.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingParam, strings.Join(missing, ", "))
	}
	return nil
}

// DSN renders the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}
