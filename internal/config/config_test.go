package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	configContent := `
server:
  host: "127.0.0.1"
  port: 9090
  environment: production
  allowed_origins:
    - "https://fraudlens.example.com"
storage:
  path: "/var/lib/fraudlens/runs.db"
analysis:
  zscore_threshold: 2.5
  workers: 4
reporting:
  enabled: true
  output_dir: "/var/lib/fraudlens/reports"
  top_customers: 50
  top_transactions: 25
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host '127.0.0.1', got '%s'", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Environment != "production" {
		t.Errorf("expected environment 'production', got '%s'", cfg.Server.Environment)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://fraudlens.example.com" {
		t.Errorf("unexpected allowed origins: %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Storage.Path != "/var/lib/fraudlens/runs.db" {
		t.Errorf("expected path '/var/lib/fraudlens/runs.db', got '%s'", cfg.Storage.Path)
	}
	if cfg.Analysis.ZScoreThreshold != 2.5 {
		t.Errorf("expected zscore_threshold 2.5, got %f", cfg.Analysis.ZScoreThreshold)
	}
	if cfg.Analysis.Workers != 4 {
		t.Errorf("expected workers 4, got %d", cfg.Analysis.Workers)
	}
	if !cfg.Reporting.Enabled {
		t.Error("expected reporting enabled")
	}
	if cfg.Reporting.OutputDir != "/var/lib/fraudlens/reports" {
		t.Errorf("expected output_dir '/var/lib/fraudlens/reports', got '%s'", cfg.Reporting.OutputDir)
	}
	if cfg.Reporting.TopCustomers != 50 {
		t.Errorf("expected top_customers 50, got %d", cfg.Reporting.TopCustomers)
	}
	if cfg.Reporting.TopTransactions != 25 {
		t.Errorf("expected top_transactions 25, got %d", cfg.Reporting.TopTransactions)
	}
}

func TestLoadWithEnvExpansion(t *testing.T) {
	configContent := `
storage:
  path: "${TEST_FRAUDLENS_DB}"
`

	os.Setenv("TEST_FRAUDLENS_DB", "env.db")
	defer os.Unsetenv("TEST_FRAUDLENS_DB")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Storage.Path != "env.db" {
		t.Errorf("expected path from env, got '%s'", cfg.Storage.Path)
	}
}

func TestLoadMinimalConfig(t *testing.T) {
	configContent := `
server:
  port: 9090
`

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}

	// Unset fields keep defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host '0.0.0.0', got '%s'", cfg.Server.Host)
	}
	if cfg.Analysis.ZScoreThreshold != 3.0 {
		t.Errorf("expected default zscore_threshold 3.0, got %f", cfg.Analysis.ZScoreThreshold)
	}
	if cfg.Reporting.OutputDir != "reports" {
		t.Errorf("expected default output_dir 'reports', got '%s'", cfg.Reporting.OutputDir)
	}
	if cfg.Reporting.TopCustomers != 20 || cfg.Reporting.TopTransactions != 10 {
		t.Errorf("expected default report sizes 20/10, got %d/%d",
			cfg.Reporting.TopCustomers, cfg.Reporting.TopTransactions)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: [\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFromEnv(t *testing.T) {
	cfg := LoadFromEnv()
	if cfg == nil {
		t.Fatal("expected config")
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Environment != "development" {
		t.Errorf("expected default environment 'development', got '%s'", cfg.Server.Environment)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("unexpected default origins: %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Storage.Path != "fraudlens.db" {
		t.Errorf("expected default path 'fraudlens.db', got '%s'", cfg.Storage.Path)
	}
	if cfg.Analysis.ZScoreThreshold != 3.0 {
		t.Errorf("expected default zscore_threshold 3.0, got %f", cfg.Analysis.ZScoreThreshold)
	}
	if cfg.Analysis.Workers != 0 {
		t.Errorf("expected default workers 0, got %d", cfg.Analysis.Workers)
	}
	if !cfg.Reporting.Enabled {
		t.Error("expected reporting enabled by default")
	}
}

func TestLoadFromEnvWithOverrides(t *testing.T) {
	os.Setenv("FRAUDLENS_PORT", "9191")
	os.Setenv("FRAUDLENS_DB_PATH", "override.db")
	os.Setenv("FRAUDLENS_ZSCORE_THRESHOLD", "2.0")
	os.Setenv("FRAUDLENS_REPORTING_ENABLED", "false")
	defer func() {
		os.Unsetenv("FRAUDLENS_PORT")
		os.Unsetenv("FRAUDLENS_DB_PATH")
		os.Unsetenv("FRAUDLENS_ZSCORE_THRESHOLD")
		os.Unsetenv("FRAUDLENS_REPORTING_ENABLED")
	}()

	cfg := LoadFromEnv()

	if cfg.Server.Port != 9191 {
		t.Errorf("expected port from env, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Path != "override.db" {
		t.Errorf("expected path from env, got '%s'", cfg.Storage.Path)
	}
	if cfg.Analysis.ZScoreThreshold != 2.0 {
		t.Errorf("expected zscore_threshold from env, got %f", cfg.Analysis.ZScoreThreshold)
	}
	if cfg.Reporting.Enabled {
		t.Error("expected reporting disabled from env")
	}
}
