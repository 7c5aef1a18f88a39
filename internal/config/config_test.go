package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_CompareFullStruct(t *testing.T) {
	yamlContent := `
dataDir: "/var/lib/concord"
bindAddr: "127.0.0.1"
scanInterval: "5m"
scanHorizon: "72h"
advisorTimeout: "10s"
shutdownTimeout: "15s"
openAiModel: "gpt-4o"
metricsPort: 8088
maxRounds: 5
autoNegotiate: false
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-concord.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0o644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	expected := &Config{
		DataDir:         "/var/lib/concord",
		BindAddr:        "127.0.0.1",
		ScanInterval:    "5m",
		ScanHorizon:     "72h",
		AdvisorTimeout:  "10s",
		ShutdownTimeout: "15s",
		OpenAiModel:     "gpt-4o",
		MetricsPort:     8088,
		MaxRounds:       5,
		AutoNegotiate:   false,
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	expected := &Config{
		DataDir:         ".concord",
		BindAddr:        "0.0.0.0",
		ScanInterval:    "30m",
		ScanHorizon:     "168h",
		AdvisorTimeout:  "30s",
		ShutdownTimeout: "30s",
		MetricsPort:     12798,
		MaxRounds:       3,
		AutoNegotiate:   true,
	}

	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf(
			"config mismatch without file:\nExpected: %+v\nGot:      %+v",
			expected,
			cfg,
		)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	yamlContent := `
scanInterval: "soon"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-bad-duration.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0o644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(tmpFile); err == nil {
		t.Errorf("expected error for unparseable scanInterval, got nil")
	}
}

func TestLoad_InvalidMaxRounds(t *testing.T) {
	yamlContent := `
maxRounds: 0
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-bad-rounds.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0o644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(tmpFile); err == nil {
		t.Errorf("expected error for zero maxRounds, got nil")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := &Config{
		ScanInterval:    "5m",
		ScanHorizon:     "72h",
		AdvisorTimeout:  "10s",
		ShutdownTimeout: "garbage",
	}

	if got := cfg.ScanIntervalDuration(); got != 5*time.Minute {
		t.Errorf("expected 5m scan interval, got: %v", got)
	}
	if got := cfg.ScanHorizonDuration(); got != 72*time.Hour {
		t.Errorf("expected 72h scan horizon, got: %v", got)
	}
	if got := cfg.AdvisorTimeoutDuration(); got != 10*time.Second {
		t.Errorf("expected 10s advisor timeout, got: %v", got)
	}
	// Unparseable value falls back to the default
	if got := cfg.ShutdownTimeoutDuration(); got != 30*time.Second {
		t.Errorf("expected 30s shutdown timeout fallback, got: %v", got)
	}
}
