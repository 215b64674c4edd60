package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8789" || cfg.Adapter != "hci0" || cfg.EventBufferSize != 256 {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
	if cfg.ReadyTimeout != 10*time.Second {
		t.Fatalf("ReadyTimeout = %v", cfg.ReadyTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scriptbridge.yaml")
	body := `
listen: ":9999"
log:
  level: debug
  format: json
events:
  buffer_size: 64
bluetooth:
  adapter: hci1
  ready_timeout_ms: 2500
  hidraw_dir: /tmp/hidraw
wifi:
  sysfs_dir: /tmp/ieee80211
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9999" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Fatalf("log config = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.EventBufferSize != 64 {
		t.Fatalf("EventBufferSize = %d", cfg.EventBufferSize)
	}
	if cfg.Adapter != "hci1" || cfg.HidrawDir != "/tmp/hidraw" {
		t.Fatalf("bluetooth config = %q/%q", cfg.Adapter, cfg.HidrawDir)
	}
	if cfg.ReadyTimeout != 2500*time.Millisecond {
		t.Fatalf("ReadyTimeout = %v", cfg.ReadyTimeout)
	}
	if cfg.WifiSysfsDir != "/tmp/ieee80211" {
		t.Fatalf("WifiSysfsDir = %q", cfg.WifiSysfsDir)
	}
}

func TestPartialConfigKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scriptbridge.yaml")
	if err := os.WriteFile(path, []byte("listen: \":7000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7000" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.Adapter != "hci0" || cfg.EventBufferSize != 256 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestMalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scriptbridge.yaml")
	if err := os.WriteFile(path, []byte("listen: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed YAML accepted")
	}
}
