// Package config provides runtime configuration values for the storefront.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Rollback modes for failed optimistic add-to-cart calls.
const (
	// RollbackLine removes the whole cart line.
	RollbackLine = "line"
	// RollbackUnit removes exactly the unit the failed call added.
	RollbackUnit = "unit"
)

// Confirm modes select the remote cart confirmation implementation.
const (
	ConfirmSimulated = "simulated"
	ConfirmHTTP      = "http"
)

// Config holds configuration knobs for the HTTP server, catalog cache, cart
// storage and optimistic mutations.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `yaml:"log_level" envconfig:"LOG_LEVEL"`

	CatalogBaseURL     string        `yaml:"catalog_base_url" envconfig:"CATALOG_BASE_URL"`
	CatalogTimeout     time.Duration `yaml:"catalog_timeout" envconfig:"CATALOG_TIMEOUT"`
	PageSize           int           `yaml:"page_size" envconfig:"PAGE_SIZE"`
	ProductStaleTime   time.Duration `yaml:"product_stale_time" envconfig:"PRODUCT_STALE_TIME"`
	ProductGCTime      time.Duration `yaml:"product_gc_time" envconfig:"PRODUCT_GC_TIME"`
	CategoryStaleTime  time.Duration `yaml:"category_stale_time" envconfig:"CATEGORY_STALE_TIME"`
	CategoryGCTime     time.Duration `yaml:"category_gc_time" envconfig:"CATEGORY_GC_TIME"`
	CacheSweepInterval time.Duration `yaml:"cache_sweep_interval" envconfig:"CACHE_SWEEP_INTERVAL"`

	StorageDriver string `yaml:"storage_driver" envconfig:"STORAGE_DRIVER"`
	StoragePath   string `yaml:"storage_path" envconfig:"STORAGE_PATH"`
	StorageKey    string `yaml:"storage_key" envconfig:"STORAGE_KEY"`

	ConfirmMode        string        `yaml:"confirm_mode" envconfig:"CONFIRM_MODE"`
	ConfirmDelay       time.Duration `yaml:"confirm_delay" envconfig:"CONFIRM_DELAY"`
	ConfirmFailureRate float64       `yaml:"confirm_failure_rate" envconfig:"CONFIRM_FAILURE_RATE"`
	ConfirmUserID      int           `yaml:"confirm_user_id" envconfig:"CONFIRM_USER_ID"`
	RollbackMode       string        `yaml:"rollback_mode" envconfig:"ROLLBACK_MODE"`

	SearchDebounce time.Duration `yaml:"search_debounce" envconfig:"SEARCH_DEBOUNCE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:           ":8080",
		ShutdownTimeout:    15 * time.Second,
		LogLevel:           "info",
		CatalogBaseURL:     "https://dummyjson.com",
		CatalogTimeout:     10 * time.Second,
		PageSize:           12,
		ProductStaleTime:   5 * time.Minute,
		ProductGCTime:      10 * time.Minute,
		CategoryStaleTime:  30 * time.Minute,
		CategoryGCTime:     60 * time.Minute,
		CacheSweepInterval: time.Minute,
		StorageDriver:      "file",
		StoragePath:        "./data",
		StorageKey:         "cart-storage",
		ConfirmMode:        ConfirmSimulated,
		ConfirmDelay:       500 * time.Millisecond,
		ConfirmFailureRate: 0,
		ConfirmUserID:      1,
		RollbackMode:       RollbackLine,
		SearchDebounce:     500 * time.Millisecond,
	}
}

// Load collects configuration from environment with defaults.
func Load() (Config, error) {
	cfg := Default()
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML file over the defaults, then applies the environment.
// Environment variables win over the file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if u, err := url.Parse(c.CatalogBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("catalog_base_url %q is not an absolute URL", c.CatalogBaseURL))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("page_size must be positive"))
	}
	if c.ProductGCTime < c.ProductStaleTime {
		errs = append(errs, errors.New("product_gc_time must not be shorter than product_stale_time"))
	}
	if c.CategoryGCTime < c.CategoryStaleTime {
		errs = append(errs, errors.New("category_gc_time must not be shorter than category_stale_time"))
	}
	switch c.StorageDriver {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage_driver %q must be file, sqlite or memory", c.StorageDriver))
	}
	if c.StorageKey == "" {
		errs = append(errs, errors.New("storage_key is required"))
	}
	switch c.ConfirmMode {
	case ConfirmSimulated, ConfirmHTTP:
	default:
		errs = append(errs, fmt.Errorf("confirm_mode %q must be simulated or http", c.ConfirmMode))
	}
	if c.ConfirmFailureRate < 0 || c.ConfirmFailureRate > 1 {
		errs = append(errs, errors.New("confirm_failure_rate must be between 0 and 1"))
	}
	switch c.RollbackMode {
	case RollbackLine, RollbackUnit:
	default:
		errs = append(errs, fmt.Errorf("rollback_mode %q must be line or unit", c.RollbackMode))
	}
	return errors.Join(errs...)
}
