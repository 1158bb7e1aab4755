package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr != defaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, defaultAddr)
	}
	if cfg.DefaultLanguage != defaultLanguage {
		t.Errorf("DefaultLanguage = %q, want %q", cfg.DefaultLanguage, defaultLanguage)
	}
	if cfg.Gateway.BaseURL == "" {
		t.Error("Gateway.BaseURL is empty, want the gateway default")
	}
}

func TestConfigMerge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Merge(&Config{DefaultLanguage: "javascript"})

	if cfg.DefaultLanguage != "javascript" {
		t.Errorf("DefaultLanguage = %q, want %q", cfg.DefaultLanguage, "javascript")
	}
	if cfg.Addr != defaultAddr {
		t.Errorf("Addr = %q, want default preserved", cfg.Addr)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
addr: "0.0.0.0:8700"
default_cwd: "/srv/runs"
gateway:
  base_url: "http://gw.internal:8888"
  token: "secret"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Addr != "0.0.0.0:8700" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, "0.0.0.0:8700")
	}
	if cfg.DefaultCWD != "/srv/runs" {
		t.Errorf("DefaultCWD = %q, want %q", cfg.DefaultCWD, "/srv/runs")
	}
	if cfg.DefaultLanguage != defaultLanguage {
		t.Errorf("DefaultLanguage = %q, want default filled in", cfg.DefaultLanguage)
	}
	if cfg.Gateway.BaseURL != "http://gw.internal:8888" || cfg.Gateway.Token != "secret" {
		t.Errorf("Gateway = %+v", cfg.Gateway)
	}
}

func TestLoadConfig_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"default_language": "r", "gateway": {"base_url": "http://127.0.0.1:9999"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.DefaultLanguage != "r" {
		t.Errorf("DefaultLanguage = %q, want %q", cfg.DefaultLanguage, "r")
	}
	if cfg.Gateway.BaseURL != "http://127.0.0.1:9999" {
		t.Errorf("Gateway.BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Addr != defaultAddr {
		t.Errorf("Addr = %q, want default filled in", cfg.Addr)
	}
	if cfg.Gateway.Timeout != 30*time.Second {
		t.Errorf("Gateway.Timeout = %v, want default preserved", cfg.Gateway.Timeout)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfig() of a missing file should fail")
	}
}
