// Package config loads the process configuration: an optional YAML file
// overlaid with KOMPRENDER__ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aleksandr-gorokhov/komprender/internal/connection"
	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/sink/kafka"
	"github.com/aleksandr-gorokhov/komprender/sink/stdout"
	"github.com/aleksandr-gorokhov/komprender/sink/ws"
	kafkasrc "github.com/aleksandr-gorokhov/komprender/source/kafka"
)

const (
	SupportedSchema = "v1"
	EnvPrefix       = "KOMPRENDER__"

	DefaultGRPCPort      = 7070
	DefaultHTTPPort      = 8080
	DefaultMetricsPort   = 9100
	DefaultSchemaTimeout = 5 * time.Second
	DefaultSink          = "ws"
)

type Config struct {
	SchemaVersion   string          `koanf:"schema_version"`
	Log             Log             `koanf:"log"`
	Kafka           kafkasrc.Config `koanf:"kafka"`
	SchemaRegistry  SchemaRegistry  `koanf:"schema_registry"`
	Consumer        Consumer        `koanf:"consumer"`
	Server          Server          `koanf:"server"`
	Sinks           []string        `koanf:"sinks"`
	SinkConfigs     SinkConfigs     `koanf:"sink_configs"`
	ConnectionsFile string          `koanf:"connections_file"`
}

type Log struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
	// Components maps a component name to its own level.
	Components map[string]string `koanf:"components"`
}

type SchemaRegistry struct {
	URL     string        `koanf:"url"` // empty = no registry
	Timeout time.Duration `koanf:"timeout"`
}

type Consumer struct {
	LastN       int    `koanf:"last_n"`
	MaxMessages int    `koanf:"max_messages"`
	GroupPrefix string `koanf:"group_prefix"`
}

type Server struct {
	GRPCPort       int      `koanf:"grpc_port"`
	HTTPPort       int      `koanf:"http_port"`
	MetricsPort    int      `koanf:"metrics_port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type SinkConfigs struct {
	Kafka  kafka.Config  `koanf:"kafka"`
	Stdout stdout.Config `koanf:"stdout"`
	WS     ws.Config     `koanf:"ws"`
}

// Load merges YAML (if present) with env-vars (prefix `KOMPRENDER__`,
// delimiter `__`) and applies defaults.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey(EnvPrefix)), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envKey(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}
}

// ApplyDefaults fills unset fields and rejects unknown schema versions.
func (c *Config) ApplyDefaults() error {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.SchemaVersion != SupportedSchema {
		return fmt.Errorf("config schema_version %q not supported (want %q)", c.SchemaVersion, SupportedSchema)
	}

	c.Kafka.ApplyDefaults()
	if c.SchemaRegistry.Timeout <= 0 {
		c.SchemaRegistry.Timeout = DefaultSchemaTimeout
	}
	if c.Consumer.LastN <= 0 {
		c.Consumer.LastN = consume.DefaultLastN
	}
	if c.Consumer.MaxMessages <= 0 {
		c.Consumer.MaxMessages = consume.DefaultMaxMessages
	}
	if c.Consumer.GroupPrefix == "" {
		c.Consumer.GroupPrefix = consume.DefaultGroupPrefix
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = DefaultGRPCPort
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = DefaultMetricsPort
	}
	c.Server.AllowedOrigins = splitList(c.Server.AllowedOrigins)
	c.Sinks = splitList(c.Sinks)
	if len(c.Sinks) == 0 {
		c.Sinks = []string{DefaultSink}
	}
	c.SinkConfigs.Kafka.Brokers = splitList(c.SinkConfigs.Kafka.Brokers)
	if len(c.SinkConfigs.WS.AllowedOrigins) == 0 {
		c.SinkConfigs.WS.AllowedOrigins = c.Server.AllowedOrigins
	}
	if c.ConnectionsFile == "" {
		c.ConnectionsFile = connection.DefaultPath()
	}
	return nil
}

// ConsumeOptions maps the consumer and kafka sections onto consume.Options.
func (c Config) ConsumeOptions() consume.Options {
	return consume.Options{
		LastN:             c.Consumer.LastN,
		MaxMessages:       c.Consumer.MaxMessages,
		MetadataTimeout:   c.Kafka.MetadataTimeout,
		AssignmentTimeout: c.Kafka.AssignmentTimeout,
		GroupPrefix:       c.Consumer.GroupPrefix,
	}
}

// splitList flattens "a,b" entries, which is how lists arrive from env.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
