// Package config loads daemon settings with precedence
// file > environment > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	HTTP   *HTTPConfig   `json:"http"`
	Device *DeviceConfig `json:"device"`
	Store  *StoreConfig  `json:"store"`
	Keymap *KeymapConfig `json:"keymap"`
}

// HTTPConfig covers both the WebSocket endpoint and the management API,
// served from one listener.
type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DeviceConfig describes the virtual keyboards the daemon creates.
type DeviceConfig struct {
	DefaultID int    `json:"default_id"`
	Name      string `json:"name"`
	Vendor    uint16 `json:"vendor"`
	Product   uint16 `json:"product"`
}

// StoreConfig configures the keymap profile database.
type StoreConfig struct {
	Path         string        `json:"path"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// KeymapConfig points at an optional keymap override file merged on top
// of the built-in table. When Watch is set the file is reloaded on
// change.
type KeymapConfig struct {
	Path  string `json:"path"`
	Watch bool   `json:"watch"`
}

// DefaultConfig returns settings for a single-host deployment.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8765,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Device: &DeviceConfig{
			DefaultID: 0,
			Name:      "keybridge-virtual-keyboard",
			Vendor:    0x1234,
			Product:   0x5678,
		},
		Store: &StoreConfig{
			Path:         "./keybridge.db",
			WriteTimeout: 30 * time.Second,
		},
		Keymap: &KeymapConfig{
			Path:  "",
			Watch: false,
		},
	}
}

// Validate checks the configuration for values that would fail at
// runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.Device == nil {
		return fmt.Errorf("device configuration is required")
	}
	if c.Device.DefaultID < 0 {
		return fmt.Errorf("device default ID cannot be negative")
	}
	if c.Device.Name == "" {
		return fmt.Errorf("device name cannot be empty")
	}

	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.Store.WriteTimeout <= 0 {
		return fmt.Errorf("store write timeout must be positive")
	}

	if c.Keymap == nil {
		return fmt.Errorf("keymap configuration is required")
	}
	if c.Keymap.Watch && c.Keymap.Path == "" {
		return fmt.Errorf("keymap watch requires a keymap path")
	}

	return nil
}

// LoadFromEnv overrides defaults with KEYBRIDGE_* environment
// variables. Unparseable values fall back to defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("KEYBRIDGE_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("KEYBRIDGE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if readTimeout := os.Getenv("KEYBRIDGE_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("KEYBRIDGE_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if deviceID := os.Getenv("KEYBRIDGE_DEVICE_DEFAULT_ID"); deviceID != "" {
		if id, err := strconv.Atoi(deviceID); err == nil {
			config.Device.DefaultID = id
		}
	}
	if name := os.Getenv("KEYBRIDGE_DEVICE_NAME"); name != "" {
		config.Device.Name = name
	}

	if storePath := os.Getenv("KEYBRIDGE_STORE_PATH"); storePath != "" {
		config.Store.Path = storePath
	}
	if storeTimeout := os.Getenv("KEYBRIDGE_STORE_WRITE_TIMEOUT"); storeTimeout != "" {
		if timeout, err := time.ParseDuration(storeTimeout); err == nil {
			config.Store.WriteTimeout = timeout
		}
	}

	if keymapPath := os.Getenv("KEYBRIDGE_KEYMAP_PATH"); keymapPath != "" {
		config.Keymap.Path = keymapPath
	}
	if watch := os.Getenv("KEYBRIDGE_KEYMAP_WATCH"); watch != "" {
		if w, err := strconv.ParseBool(watch); err == nil {
			config.Keymap.Watch = w
		}
	}

	return config
}

// ConfigFile mirrors Config for JSON parsing; durations are strings
// like "30s".
type ConfigFile struct {
	HTTP   *HTTPConfigFile   `json:"http"`
	Device *DeviceConfigFile `json:"device"`
	Store  *StoreConfigFile  `json:"store"`
	Keymap *KeymapConfig     `json:"keymap"`
}

type HTTPConfigFile struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type DeviceConfigFile struct {
	DefaultID *int   `json:"default_id"`
	Name      string `json:"name"`
	Vendor    uint16 `json:"vendor"`
	Product   uint16 `json:"product"`
}

type StoreConfigFile struct {
	Path         string `json:"path"`
	WriteTimeout string `json:"write_timeout"`
}

// LoadFromFile reads a JSON config file. Absent fields keep their
// defaults; the result is validated before use.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.HTTP != nil {
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = timeout
			}
		}
		if configFile.HTTP.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = timeout
			}
		}
	}

	if configFile.Device != nil {
		if configFile.Device.DefaultID != nil {
			config.Device.DefaultID = *configFile.Device.DefaultID
		}
		if configFile.Device.Name != "" {
			config.Device.Name = configFile.Device.Name
		}
		if configFile.Device.Vendor != 0 {
			config.Device.Vendor = configFile.Device.Vendor
		}
		if configFile.Device.Product != 0 {
			config.Device.Product = configFile.Device.Product
		}
	}

	if configFile.Store != nil {
		if configFile.Store.Path != "" {
			config.Store.Path = configFile.Store.Path
		}
		if configFile.Store.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Store.WriteTimeout); err == nil {
				config.Store.WriteTimeout = timeout
			}
		}
	}

	if configFile.Keymap != nil {
		config.Keymap = configFile.Keymap
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence applies file > environment > defaults. A
// missing or unreadable file is ignored; environment and defaults
// still apply.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
