package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil http", func(c *Config) { c.HTTP = nil }},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"negative read timeout", func(c *Config) { c.HTTP.ReadTimeout = -time.Second }},
		{"nil device", func(c *Config) { c.Device = nil }},
		{"negative device id", func(c *Config) { c.Device.DefaultID = -1 }},
		{"empty device name", func(c *Config) { c.Device.Name = "" }},
		{"nil store", func(c *Config) { c.Store = nil }},
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"watch without path", func(c *Config) { c.Keymap.Watch = true; c.Keymap.Path = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KEYBRIDGE_HTTP_PORT", "9999")
	t.Setenv("KEYBRIDGE_HTTP_HOST", "127.0.0.1")
	t.Setenv("KEYBRIDGE_DEVICE_DEFAULT_ID", "5")
	t.Setenv("KEYBRIDGE_STORE_PATH", "/tmp/env.db")
	t.Setenv("KEYBRIDGE_STORE_WRITE_TIMEOUT", "45s")
	t.Setenv("KEYBRIDGE_KEYMAP_WATCH", "true")
	t.Setenv("KEYBRIDGE_KEYMAP_PATH", "/tmp/keymap.json")

	config := LoadFromEnv()

	if config.HTTP.Port != 9999 {
		t.Errorf("expected port 9999, got %d", config.HTTP.Port)
	}
	if config.HTTP.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", config.HTTP.Host)
	}
	if config.Device.DefaultID != 5 {
		t.Errorf("expected device 5, got %d", config.Device.DefaultID)
	}
	if config.Store.Path != "/tmp/env.db" {
		t.Errorf("expected store path /tmp/env.db, got %s", config.Store.Path)
	}
	if config.Store.WriteTimeout != 45*time.Second {
		t.Errorf("expected write timeout 45s, got %v", config.Store.WriteTimeout)
	}
	if !config.Keymap.Watch {
		t.Error("expected keymap watch enabled")
	}
}

func TestLoadFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("KEYBRIDGE_HTTP_PORT", "not-a-number")
	t.Setenv("KEYBRIDGE_STORE_WRITE_TIMEOUT", "eleventy")

	config := LoadFromEnv()

	defaults := DefaultConfig()
	if config.HTTP.Port != defaults.HTTP.Port {
		t.Errorf("expected default port, got %d", config.HTTP.Port)
	}
	if config.Store.WriteTimeout != defaults.Store.WriteTimeout {
		t.Errorf("expected default write timeout, got %v", config.Store.WriteTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `{
		"http": {"host": "localhost", "port": 8888, "read_timeout": "10s"},
		"device": {"default_id": 2, "name": "test-keyboard"},
		"store": {"path": "/tmp/file.db", "write_timeout": "20s"},
		"keymap": {"path": "/etc/keybridge/keymap.json", "watch": true}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.HTTP.Port != 8888 {
		t.Errorf("expected port 8888, got %d", config.HTTP.Port)
	}
	if config.HTTP.ReadTimeout != 10*time.Second {
		t.Errorf("expected read timeout 10s, got %v", config.HTTP.ReadTimeout)
	}
	if config.Device.DefaultID != 2 {
		t.Errorf("expected device 2, got %d", config.Device.DefaultID)
	}
	if config.Device.Name != "test-keyboard" {
		t.Errorf("expected custom device name, got %s", config.Device.Name)
	}
	if !config.Keymap.Watch {
		t.Error("expected keymap watch enabled")
	}

	// Unspecified fields keep defaults.
	if config.HTTP.WriteTimeout != DefaultConfig().HTTP.WriteTimeout {
		t.Errorf("expected default write timeout, got %v", config.HTTP.WriteTimeout)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("KEYBRIDGE_HTTP_PORT", "9000")

	content := `{"http": {"port": 9001}}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// File wins over environment.
	config := LoadConfigWithPrecedence(path)
	if config.HTTP.Port != 9001 {
		t.Errorf("expected file port 9001, got %d", config.HTTP.Port)
	}

	// Missing file falls back to environment.
	config = LoadConfigWithPrecedence("/nonexistent/config.json")
	if config.HTTP.Port != 9000 {
		t.Errorf("expected env port 9000, got %d", config.HTTP.Port)
	}

	// Empty path skips the file entirely.
	config = LoadConfigWithPrecedence("")
	if config.HTTP.Port != 9000 {
		t.Errorf("expected env port 9000, got %d", config.HTTP.Port)
	}
}
