package kafka

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aleksandr-gorokhov/komprender/internal/logging"
)

const (
	DefaultDriver            = "sarama"
	DefaultVersion           = "2.8.0"
	DefaultClientID          = "komprender"
	DefaultMetadataTimeout   = 5 * time.Second
	DefaultAssignmentTimeout = 9 * time.Second
)

type Config struct {
	Driver   string   `koanf:"driver"`
	Brokers  []string `koanf:"brokers"`
	Version  string   `koanf:"version"`
	ClientID string   `koanf:"client_id"`
	TLSEn    bool     `koanf:"tls_enabled"`
	SASLUser string   `koanf:"sasl_user"`
	SASLPass string   `koanf:"sasl_pass"`

	MetadataTimeout   time.Duration `koanf:"metadata_timeout"`   // per watermark query
	AssignmentTimeout time.Duration `koanf:"assignment_timeout"` // join + first assignment
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// LoadConfig merges YAML (if present) with env-vars
// (prefix `KOMPRENDER_KAFKA__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("kafka schema_version %q not supported (want v1)", sv)
	}

	if err := k.Load(env.Provider("KOMPRENDER_KAFKA__", ".", envKey("KOMPRENDER_KAFKA__")), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func envKey(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.MetadataTimeout <= 0 {
		c.MetadataTimeout = DefaultMetadataTimeout
	}
	if c.AssignmentTimeout <= 0 {
		c.AssignmentTimeout = DefaultAssignmentTimeout
	}
	// "a:9092,b:9092" arrives as a single entry from env or the UI.
	var brokers []string
	for _, b := range c.Brokers {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				brokers = append(brokers, part)
			}
		}
	}
	c.Brokers = brokers
}

// ---------------------------------------------------------------------------
// sarama
// ---------------------------------------------------------------------------

func init() {
	sarama.Logger = logging.SaramaLogger{}
}

// saramaConfig builds the client config shared by every handle of a
// connection. Consumer groups built from it never commit offsets.
func (c Config) saramaConfig() (*sarama.Config, error) {
	ver, err := sarama.ParseKafkaVersion(c.Version)
	if err != nil {
		return nil, err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.ClientID = c.ClientID
	sc.Metadata.Timeout = c.MetadataTimeout
	// Browsing a missing topic must fail, not create it.
	sc.Metadata.AllowAutoTopicCreation = false
	sc.Net.DialTimeout = c.MetadataTimeout
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = false
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	if c.TLSEn {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if c.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = c.SASLUser, c.SASLPass
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}
