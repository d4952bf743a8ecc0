package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoaderLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "superego.yaml")

	yamlContent := `
server:
  http_addr: ":9000"
  stdio: true
  log_level: debug

rules:
  path: custom/rules.yaml

sampler:
  failure_threshold: 3
  recovery_timeout: 15s

sanitize:
  enabled: false
  mode: deny

audit:
  capacity: 500
  sqlite_path: ./audit.db

health:
  poll_interval: 2s
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	loader := NewLoader()
	if err := loader.Load(configPath); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cfg := loader.Get()
	if cfg.Server.HTTPAddr != ":9000" {
		t.Errorf("Server.HTTPAddr = %q, want \":9000\"", cfg.Server.HTTPAddr)
	}
	if !cfg.Server.Stdio {
		t.Error("Server.Stdio = false, want true")
	}
	if cfg.Rules.Path != "custom/rules.yaml" {
		t.Errorf("Rules.Path = %q, want \"custom/rules.yaml\"", cfg.Rules.Path)
	}
	if cfg.Sampler.FailureThreshold != 3 {
		t.Errorf("Sampler.FailureThreshold = %d, want 3", cfg.Sampler.FailureThreshold)
	}
	if cfg.Sampler.RecoveryTimeout != 15*time.Second {
		t.Errorf("Sampler.RecoveryTimeout = %v, want 15s", cfg.Sampler.RecoveryTimeout)
	}
	if cfg.Sanitize.Enabled {
		t.Error("Sanitize.Enabled = true, want false")
	}
	if cfg.Audit.Capacity != 500 {
		t.Errorf("Audit.Capacity = %d, want 500", cfg.Audit.Capacity)
	}
	if cfg.Audit.SQLitePath != "./audit.db" {
		t.Errorf("Audit.SQLitePath = %q, want \"./audit.db\"", cfg.Audit.SQLitePath)
	}
	if cfg.Health.PollInterval != 2*time.Second {
		t.Errorf("Health.PollInterval = %v, want 2s", cfg.Health.PollInterval)
	}
}

func TestLoaderDefaultConfig(t *testing.T) {
	loader := NewLoader()
	cfg := loader.Get()

	if cfg.Server.HTTPAddr != ":8737" {
		t.Errorf("default Server.HTTPAddr = %q, want \":8737\"", cfg.Server.HTTPAddr)
	}
	if cfg.Rules.Path != "config/rules.yaml" {
		t.Errorf("default Rules.Path = %q, want \"config/rules.yaml\"", cfg.Rules.Path)
	}
	if cfg.Sampler.FailureThreshold != 5 {
		t.Errorf("default Sampler.FailureThreshold = %d, want 5", cfg.Sampler.FailureThreshold)
	}
	if !cfg.Sanitize.Enabled {
		t.Error("default Sanitize.Enabled = false, want true")
	}
}

func TestLoaderLoadNonExistentFile(t *testing.T) {
	loader := NewLoader()
	if err := loader.Load("/nonexistent/path/to/config.yaml"); err == nil {
		t.Error("Load() with nonexistent file should return error")
	}
}

func TestLoaderLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.yaml")

	if err := os.WriteFile(configPath, []byte(`{{{invalid yaml`), 0644); err != nil {
		t.Fatalf("failed to write bad config: %v", err)
	}

	loader := NewLoader()
	if err := loader.Load(configPath); err == nil {
		t.Error("Load() with invalid YAML should return error")
	}
}

func TestLoaderFilePath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "superego.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  http_addr: \":9999\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	if loader.FilePath() != "" {
		t.Errorf("FilePath() before Load() = %q, want empty", loader.FilePath())
	}

	if err := loader.Load(configPath); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loader.FilePath() != configPath {
		t.Errorf("FilePath() = %q, want %q", loader.FilePath(), configPath)
	}
}

func TestLoaderReload(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "superego.yaml")

	if err := os.WriteFile(configPath, []byte("server:\n  http_addr: \":8080\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	if err := loader.Load(configPath); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loader.Get().Server.HTTPAddr != ":8080" {
		t.Errorf("initial addr = %q, want \":8080\"", loader.Get().Server.HTTPAddr)
	}

	if err := os.WriteFile(configPath, []byte("server:\n  http_addr: \":9999\"\n"), 0644); err != nil {
		t.Fatalf("failed to overwrite config: %v", err)
	}
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if loader.Get().Server.HTTPAddr != ":9999" {
		t.Errorf("reloaded addr = %q, want \":9999\"", loader.Get().Server.HTTPAddr)
	}
}

func TestLoaderReloadWithoutLoad(t *testing.T) {
	loader := NewLoader()
	if err := loader.Reload(); err == nil {
		t.Error("Reload() without prior Load() should return error")
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("TEST_SE_ADDR", "9999")
	os.Setenv("TEST_SE_SECRET", "my-secret")
	defer os.Unsetenv("TEST_SE_ADDR")
	defer os.Unsetenv("TEST_SE_SECRET")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple substitution", "addr: ${TEST_SE_ADDR}", "addr: 9999"},
		{
			"multiple substitutions",
			"addr: ${TEST_SE_ADDR}\nsecret: ${TEST_SE_SECRET}",
			"addr: 9999\nsecret: my-secret",
		},
		{"undefined variable", "value: ${UNDEFINED_TEST_VAR_XYZ}", "value: "},
		{"default value syntax", "value: ${UNDEFINED_TEST_VAR_XYZ:-default-val}", "value: default-val"},
		{"default not used when set", "addr: ${TEST_SE_ADDR:-1234}", "addr: 9999"},
		{"no env vars", "addr: 8080", "addr: 8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSubstituteEnvVarsInConfigLoad(t *testing.T) {
	os.Setenv("TEST_SE_CFG_ADDR", ":7777")
	defer os.Unsetenv("TEST_SE_CFG_ADDR")

	dir := t.TempDir()
	configPath := filepath.Join(dir, "superego.yaml")

	yamlContent := `
server:
  http_addr: "${TEST_SE_CFG_ADDR}"
  log_level: info
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	if err := loader.Load(configPath); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loader.Get().Server.HTTPAddr != ":7777" {
		t.Errorf("Server.HTTPAddr with env var = %q, want \":7777\"", loader.Get().Server.HTTPAddr)
	}
}

func TestGenerateDefault(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "superego.yaml")

	if err := GenerateDefault(configPath); err != nil {
		t.Fatalf("GenerateDefault() error: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read generated config: %v", err)
	}
	if len(data) == 0 {
		t.Error("generated config is empty")
	}

	loader := NewLoader()
	if err := loader.Load(configPath); err != nil {
		t.Fatalf("generated config is not valid YAML: %v", err)
	}
	if loader.Get().Server.HTTPAddr != ":8737" {
		t.Errorf("generated config addr = %q, want \":8737\"", loader.Get().Server.HTTPAddr)
	}
}

func TestGenerateDefaultRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "superego.yaml")
	if err := GenerateDefault(configPath); err != nil {
		t.Fatalf("GenerateDefault() error: %v", err)
	}
	if err := GenerateDefault(configPath); err == nil {
		t.Error("GenerateDefault() on existing file should return error")
	}
}
