package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_YAMLOverlaidWithEnv(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`schema_version: v1
kafka:
  brokers: [a:9092]
  metadata_timeout: 2s
schema_registry:
  url: http://localhost:8081
consumer:
  last_n: 50
server:
  http_port: 9090
sinks: [ws, stdout]
sink_configs:
  stdout:
    print_counter: true
    value_max_bytes: 512
`)
	path := filepath.Join(dir, "komprender.yml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KOMPRENDER__KAFKA__BROKERS", "b:9092,c:9092")
	t.Setenv("KOMPRENDER__CONSUMER__MAX_MESSAGES", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Kafka.Brokers; len(got) != 2 || got[0] != "b:9092" || got[1] != "c:9092" {
		t.Fatalf("env brokers not applied: %v", got)
	}
	if cfg.Kafka.MetadataTimeout != 2*time.Second {
		t.Fatalf("want metadata timeout 2s, got %v", cfg.Kafka.MetadataTimeout)
	}
	if cfg.SchemaRegistry.URL != "http://localhost:8081" || cfg.SchemaRegistry.Timeout != DefaultSchemaTimeout {
		t.Fatalf("schema registry: %+v", cfg.SchemaRegistry)
	}
	opts := cfg.ConsumeOptions()
	if opts.LastN != 50 || opts.MaxMessages != 25 || opts.MetadataTimeout != 2*time.Second {
		t.Fatalf("consume options: %+v", opts)
	}
	if cfg.Server.HTTPPort != 9090 || cfg.Server.GRPCPort != DefaultGRPCPort {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[1] != "stdout" {
		t.Fatalf("sinks: %v", cfg.Sinks)
	}
	if !cfg.SinkConfigs.Stdout.PrintCounter || cfg.SinkConfigs.Stdout.ValueMaxBytes != 512 {
		t.Fatalf("stdout sink: %+v", cfg.SinkConfigs.Stdout)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SchemaVersion != SupportedSchema {
		t.Fatalf("want schema %s, got %s", SupportedSchema, cfg.SchemaVersion)
	}
	if cfg.Kafka.Driver != "sarama" || cfg.Consumer.LastN != 100 || cfg.Consumer.MaxMessages != 100 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0] != DefaultSink {
		t.Fatalf("want default sink, got %v", cfg.Sinks)
	}
	if cfg.ConnectionsFile == "" {
		t.Fatal("connections file not defaulted")
	}
}

func TestLoad_InvalidSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "komprender.yml")
	if err := os.WriteFile(path, []byte("schema_version: v999\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid schema_version")
	}
}

func TestLoad_AllowedOriginsReachWebsocketSink(t *testing.T) {
	t.Setenv("KOMPRENDER__SERVER__ALLOWED_ORIGINS", "https://ui.example.com, http://localhost:5173")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.SinkConfigs.WS.AllowedOrigins; len(got) != 2 || got[1] != "http://localhost:5173" {
		t.Fatalf("ws origins: %v", got)
	}
}

func TestLoad_LogComponentLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "komprender.yml")
	raw := []byte("log:\n  level: warn\n  components:\n    sarama: debug\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Components["sarama"] != "debug" {
		t.Fatalf("log config not loaded: %+v", cfg.Log)
	}
}
