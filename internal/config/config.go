package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for FraudLens
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Reporting ReportingConfig `yaml:"reporting"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds run persistence configuration
type StorageConfig struct {
	Path string `yaml:"path"`
}

// AnalysisConfig holds pipeline tuning parameters
type AnalysisConfig struct {
	ZScoreThreshold float64 `yaml:"zscore_threshold"`
	Workers         int     `yaml:"workers"`
}

// ReportingConfig holds report output configuration
type ReportingConfig struct {
	Enabled         bool   `yaml:"enabled"`
	OutputDir       string `yaml:"output_dir"`
	TopCustomers    int    `yaml:"top_customers"`
	TopTransactions int    `yaml:"top_transactions"`
}

// Load loads configuration from a YAML file, layered over the
// environment defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := LoadFromEnv()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           getEnv("FRAUDLENS_HOST", "0.0.0.0"),
			Port:           getEnvInt("FRAUDLENS_PORT", 8080),
			Environment:    getEnv("FRAUDLENS_ENVIRONMENT", "development"),
			AllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Path: getEnv("FRAUDLENS_DB_PATH", "fraudlens.db"),
		},
		Analysis: AnalysisConfig{
			ZScoreThreshold: getEnvFloat("FRAUDLENS_ZSCORE_THRESHOLD", 3.0),
			Workers:         getEnvInt("FRAUDLENS_WORKERS", 0),
		},
		Reporting: ReportingConfig{
			Enabled:         getEnvBool("FRAUDLENS_REPORTING_ENABLED", true),
			OutputDir:       getEnv("FRAUDLENS_REPORT_DIR", "reports"),
			TopCustomers:    getEnvInt("FRAUDLENS_REPORT_TOP_CUSTOMERS", 20),
			TopTransactions: getEnvInt("FRAUDLENS_REPORT_TOP_TRANSACTIONS", 10),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
