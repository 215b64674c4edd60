// Package config loads the YAML config and provides the daemon settings.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "/etc/scriptbridge.yaml"

type yamlConfig struct {
	Listen string `yaml:"listen"`
	Log    struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Events struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"events"`
	Bluetooth struct {
		Adapter        string `yaml:"adapter"`
		ReadyTimeoutMs int    `yaml:"ready_timeout_ms"`
		HidrawDir      string `yaml:"hidraw_dir"`
	} `yaml:"bluetooth"`
	Wifi struct {
		SysfsDir string `yaml:"sysfs_dir"`
	} `yaml:"wifi"`
}

type Config struct {
	// Listen is the host:port the RPC server binds.
	Listen string

	LogLevel  string
	LogFormat string

	// EventBufferSize bounds the named-event queue the poll RPCs drain.
	EventBufferSize int

	// Adapter is the BlueZ adapter name, e.g. "hci0".
	Adapter string

	// ReadyTimeout bounds how long WaitReady blocks on the HID proxy.
	ReadyTimeout time.Duration

	// HidrawDir is the sysfs class directory enumerated for hidraw nodes.
	// Overridable for tests.
	HidrawDir string

	// WifiSysfsDir is the sysfs class directory probed for wireless phys.
	WifiSysfsDir string
}

func defaults() Config {
	return Config{
		Listen:          ":8789",
		LogLevel:        "info",
		LogFormat:       "text",
		EventBufferSize: 256,
		Adapter:         "hci0",
		ReadyTimeout:    10 * time.Second,
		HidrawDir:       "/sys/class/hidraw",
		WifiSysfsDir:    "/sys/class/ieee80211",
	}
}

// Load reads the YAML config at path. A missing file is not an error: the
// daemon runs with defaults so a bare device still comes up.
func Load(path string) (*Config, error) {
	cfg := defaults()

	var file io.ReadCloser
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		slog.Info("no config file, using defaults", "path", path)
		return &cfg, nil
	}
	if err != nil {
		slog.Error("failed to open config file", "path", path, "error", err)
		return nil, err
	}
	defer file.Close()

	var yamlCfg yamlConfig
	if err := yaml.NewDecoder(file).Decode(&yamlCfg); err != nil {
		slog.Error("failed to parse config file", "path", path, "error", err)
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if yamlCfg.Listen != "" {
		cfg.Listen = yamlCfg.Listen
	}
	if yamlCfg.Log.Level != "" {
		cfg.LogLevel = yamlCfg.Log.Level
	}
	if yamlCfg.Log.Format != "" {
		cfg.LogFormat = yamlCfg.Log.Format
	}
	if yamlCfg.Events.BufferSize > 0 {
		cfg.EventBufferSize = yamlCfg.Events.BufferSize
	}
	if yamlCfg.Bluetooth.Adapter != "" {
		cfg.Adapter = yamlCfg.Bluetooth.Adapter
	}
	if yamlCfg.Bluetooth.ReadyTimeoutMs > 0 {
		cfg.ReadyTimeout = time.Duration(yamlCfg.Bluetooth.ReadyTimeoutMs) * time.Millisecond
	}
	if yamlCfg.Bluetooth.HidrawDir != "" {
		cfg.HidrawDir = yamlCfg.Bluetooth.HidrawDir
	}
	if yamlCfg.Wifi.SysfsDir != "" {
		cfg.WifiSysfsDir = yamlCfg.Wifi.SysfsDir
	}

	slog.Info("read config from file", "path", path, "listen", cfg.Listen, "adapter", cfg.Adapter)
	return &cfg, nil
}
