package kafka

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kafka.yml")
	require.NoError(t, os.WriteFile(path, []byte(`schema_version: v1
brokers: [localhost:9092]
version: 3.5.0
metadata_timeout: 3s
`), 0o644))
	t.Setenv("KOMPRENDER_KAFKA__CLIENT_ID", "ui")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "3.5.0", cfg.Version)
	assert.Equal(t, "ui", cfg.ClientID)
	assert.Equal(t, 3*time.Second, cfg.MetadataTimeout)
	assert.Equal(t, DefaultAssignmentTimeout, cfg.AssignmentTimeout)
	assert.Equal(t, DefaultDriver, cfg.Driver)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, cfg.Version)
}

func TestLoadConfig_InvalidSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kafka.yml")
	require.NoError(t, os.WriteFile(path, []byte("schema_version: v9\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaramaConfig_NeverCommits(t *testing.T) {
	cfg := Config{Brokers: []string{"b:9092"}, SASLUser: "u", SASLPass: "p", TLSEn: true}
	cfg.ApplyDefaults()

	sc, err := cfg.saramaConfig()
	require.NoError(t, err)
	assert.False(t, sc.Consumer.Offsets.AutoCommit.Enable)
	assert.False(t, sc.Metadata.AllowAutoTopicCreation)
	assert.True(t, sc.Consumer.Return.Errors)
	assert.True(t, sc.Net.SASL.Enable)
	assert.True(t, sc.Net.TLS.Enable)
	assert.Equal(t, sarama.V2_8_0_0, sc.Version)

	cfg.Version = "not-a-version"
	_, err = cfg.saramaConfig()
	assert.Error(t, err)
}
