package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithNoYAMLOrEnv(t *testing.T) {
	cfg, err := Load("hotpath", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EventLog.TradesTopic != "trades" {
		t.Fatalf("expected default trades topic, got %q", cfg.EventLog.TradesTopic)
	}
	if cfg.Store.Path != "./data/hotpath.db" {
		t.Fatalf("expected default store path scoped to service, got %q", cfg.Store.Path)
	}
}

func TestLoadYAMLOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := "event_log:\n  trades_topic: custom-trades\n  num_partitions: 32\n"
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := Load("ingestion", path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EventLog.TradesTopic != "custom-trades" {
		t.Fatalf("expected yaml override, got %q", cfg.EventLog.TradesTopic)
	}
	if cfg.EventLog.NumPartitions != 32 {
		t.Fatalf("expected yaml override 32, got %d", cfg.EventLog.NumPartitions)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("event_log:\n  trades_topic: from-yaml\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("EVENT_LOG_TRADES_TOPIC", "from-env")

	cfg, err := Load("ingestion", path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EventLog.TradesTopic != "from-env" {
		t.Fatalf("expected env override to win, got %q", cfg.EventLog.TradesTopic)
	}
}
