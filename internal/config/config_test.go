// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return configPath
}

const validConfig = `
server:
  http_addr: "0.0.0.0:8080"
  shutdown_timeout: "15s"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

model:
  base_url: "http://localhost:11434/v1"
  api_key: "test-key"
  name: "llama3.1"
  context_length: 8192
  max_output_tokens: 1024

safety:
  enabled: true
  name: "llama-guard3"

chat:
  max_tool_iterations: 5

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 15s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "test-secret")
	}
	if cfg.Model.Name != "llama3.1" {
		t.Errorf("Model.Name = %q, want %q", cfg.Model.Name, "llama3.1")
	}
	if cfg.Model.ContextLength != 8192 {
		t.Errorf("ContextLength = %d, want 8192", cfg.Model.ContextLength)
	}
	if cfg.Model.MaxOutputTokens != 1024 {
		t.Errorf("MaxOutputTokens = %d, want 1024", cfg.Model.MaxOutputTokens)
	}
	if !cfg.Safety.Enabled {
		t.Error("Safety.Enabled = false, want true")
	}
	if cfg.Safety.Name != "llama-guard3" {
		t.Errorf("Safety.Name = %q, want %q", cfg.Safety.Name, "llama-guard3")
	}
	if cfg.Chat.MaxToolIterations != 5 {
		t.Errorf("MaxToolIterations = %d, want 5", cfg.Chat.MaxToolIterations)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("REI_TEST_SECRET", "from-env")
	t.Setenv("REI_TEST_API_KEY", "key-from-env")

	content := strings.Replace(validConfig, `jwt_secret: "test-secret"`, `jwt_secret: "${REI_TEST_SECRET}"`, 1)
	content = strings.Replace(content, `api_key: "test-key"`, `api_key: "${REI_TEST_API_KEY}"`, 1)

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "from-env")
	}
	if cfg.Model.APIKey != "key-from-env" {
		t.Errorf("Model.APIKey = %q, want %q", cfg.Model.APIKey, "key-from-env")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	content := strings.Replace(validConfig, `jwt_secret: "test-secret"`, `jwt_secret: "${REI_TEST_DOES_NOT_EXIST}"`, 1)

	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("expected validation error for empty jwt_secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error = %v, want mention of jwt_secret", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not: valid"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := strings.Replace(validConfig, `shutdown_timeout: "15s"`, `shutdown_timeout: "soon"`, 1)
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("expected duration parse error")
	}
	if !strings.Contains(err.Error(), "shutdown_timeout") {
		t.Errorf("error = %v, want mention of shutdown_timeout", err)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(s string) string
		wantErr string
	}{
		{
			name:    "missing http_addr",
			mutate:  func(s string) string { return strings.Replace(s, `http_addr: "0.0.0.0:8080"`, `http_addr: ""`, 1) },
			wantErr: "http_addr",
		},
		{
			name:    "missing database path",
			mutate:  func(s string) string { return strings.Replace(s, `path: "./test.db"`, `path: ""`, 1) },
			wantErr: "database.path",
		},
		{
			name:    "missing model base_url",
			mutate:  func(s string) string { return strings.Replace(s, `base_url: "http://localhost:11434/v1"`, `base_url: ""`, 1) },
			wantErr: "model.base_url",
		},
		{
			name:    "missing model name",
			mutate:  func(s string) string { return strings.Replace(s, `name: "llama3.1"`, `name: ""`, 1) },
			wantErr: "model.name",
		},
		{
			name:    "missing context_length",
			mutate:  func(s string) string { return strings.Replace(s, `context_length: 8192`, `context_length: 0`, 1) },
			wantErr: "context_length",
		},
		{
			name:    "safety enabled without model name",
			mutate:  func(s string) string { return strings.Replace(s, `name: "llama-guard3"`, `name: ""`, 1) },
			wantErr: "safety.name",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.mutate(validConfig)))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}
