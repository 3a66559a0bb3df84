// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/mbd888/walletscore/internal/scoring"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // optional; tracing disabled when empty

	// Pipeline
	Workers        int    // parallel partitions; 0 means one per CPU
	OutputDir      string // where the CLI writes CSVs and the analysis
	MaxUploadBytes int64  // largest transaction dump accepted over HTTP

	// Scoring thresholds overlaid on the default model
	LowActivityMinTxns  int
	RepaymentThreshold  float64
	LiquidationPenalty  float64
	UtilizationBandLow  float64
	UtilizationBandHigh float64
	UtilizationBandMax  float64 // utilization at which fitness reaches 0; 0 keeps the model default
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultOutputDir      = "output"
	DefaultMaxUploadBytes = 256 << 20
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	model := scoring.DefaultConfig()
	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:      getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Workers:        int(getEnvInt64("WORKERS", 0)),
		OutputDir:      getEnv("OUTPUT_DIR", DefaultOutputDir),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),

		LowActivityMinTxns:  int(getEnvInt64("LOW_ACTIVITY_MIN_TXNS", int64(model.Penalties.LowActivityMinTxns))),
		RepaymentThreshold:  getEnvFloat("REPAYMENT_THRESHOLD", model.Penalties.RepaymentThreshold),
		LiquidationPenalty:  getEnvFloat("LIQUIDATION_PENALTY", model.Penalties.PerLiquidation),
		UtilizationBandLow:  getEnvFloat("UTILIZATION_BAND_LOW", model.Normalization.Utilization.Low),
		UtilizationBandHigh: getEnvFloat("UTILIZATION_BAND_HIGH", model.Normalization.Utilization.High),
		UtilizationBandMax:  getEnvFloat("UTILIZATION_BAND_MAX", model.Normalization.Utilization.Max),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must be non-negative, got %d", c.Workers)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if err := c.Scoring().Validate(); err != nil {
		return fmt.Errorf("scoring thresholds: %w", err)
	}
	return nil
}

// Scoring returns the default scoring model with the configured thresholds applied.
func (c *Config) Scoring() scoring.Config {
	model := scoring.DefaultConfig()
	model.Penalties.LowActivityMinTxns = c.LowActivityMinTxns
	model.Penalties.RepaymentThreshold = c.RepaymentThreshold
	model.Penalties.PerLiquidation = c.LiquidationPenalty
	model.Normalization.Utilization.Low = c.UtilizationBandLow
	model.Normalization.Utilization.High = c.UtilizationBandHigh
	if c.UtilizationBandMax != 0 {
		model.Normalization.Utilization.Max = c.UtilizationBandMax
	}
	return model
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
