package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, s.Server.Port)
	assert.Equal(t, ":8080", s.Addr())
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	assert.Equal(t, "none", s.Tracing.Exporter)
	assert.Equal(t, 30*time.Second, s.CodeHost.Timeout)
	assert.Equal(t, "reviewpipe", s.Kafka.GroupID)
	assert.Equal(t, 4, s.Approval.Concurrency)
	assert.Empty(t, s.Kafka.Brokers)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
codehost:
  base_url: http://codehost:3001
  timeout: 5s
kafka:
  brokers: [k1:9092]
approval:
  concurrency: 8
pipelines:
  file: ./pipelines.yaml
`), 0o644))

	t.Setenv("REVIEWPIPE_LOG__LEVEL", "debug")
	t.Setenv("REVIEWPIPE_APPROVAL__CONCURRENCY", "2")
	t.Setenv("REVIEWPIPE_DATABASE__DSN", "postgres://u:p@db/reviews")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, s.Server.Port)
	assert.Equal(t, "http://codehost:3001", s.CodeHost.BaseURL)
	assert.Equal(t, 5*time.Second, s.CodeHost.Timeout)
	assert.Equal(t, []string{"k1:9092"}, s.Kafka.Brokers)
	assert.Equal(t, "./pipelines.yaml", s.Pipelines.File)
	assert.Equal(t, "debug", s.Log.Level, "env overrides default")
	assert.Equal(t, 2, s.Approval.Concurrency, "env overrides file")
	assert.Equal(t, "postgres://u:p@db/reviews", s.Database.DSN)
}

func TestLoad_BrokerList(t *testing.T) {
	t.Setenv("REVIEWPIPE_KAFKA__BROKERS", "k1:9092, k2:9092,")
	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, s.Kafka.Brokers)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("REVIEWPIPE_APPROVAL__CONCURRENCY", "0")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "approval.concurrency")
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
