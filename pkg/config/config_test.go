package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "file", cfg.Corpus.Source)
	assert.Equal(t, 250, cfg.Search.MaxPageSize)
	assert.Equal(t, "streaming", cfg.Search.DefaultStrategy)
	assert.Equal(t, 10, cfg.Search.BloomBitsPerElement)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  requestTimeout: 2s
corpus:
  source: postgres
  query: SELECT 1
search:
  defaultPageSize: 50
  maxPageSize: 100
  defaultStrategy: bitmap
redis:
  enabled: true
  cacheTTL: 5m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "postgres", cfg.Corpus.Source)
	assert.Equal(t, 50, cfg.Search.DefaultPageSize)
	assert.Equal(t, "bitmap", cfg.Search.DefaultStrategy)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	// untouched sections keep their defaults
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TQ_SERVER_PORT", "7070")
	t.Setenv("TQ_REDIS_ENABLED", "true")
	t.Setenv("TQ_KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("TQ_SEARCH_DEFAULT_STRATEGY", "pooled")
	t.Setenv("TQ_CORPUS_PATH", "/tmp/corpus.jsonl")
	t.Setenv("TQ_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TQ_KAFKA_CONSUMER_GROUP", "dashboards")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.Equal(t, "pooled", cfg.Search.DefaultStrategy)
	assert.Equal(t, "/tmp/corpus.jsonl", cfg.Corpus.Path)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "dashboards", cfg.Kafka.ConsumerGroup)
}

func TestValidation(t *testing.T) {
	tests := map[string]string{
		"unknown source":  "corpus:\n  source: s3\n",
		"page size":       "search:\n  maxPageSize: 500\n",
		"default too big": "search:\n  defaultPageSize: 300\n",
		"missing path":    "corpus:\n  source: file\n  path: \"\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "q", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=q sslmode=disable", p.DSN())
}
