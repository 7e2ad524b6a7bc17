package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshock/reviewpipe/internal/settings"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate_BuiltIn(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "built-in definitions: ok")
}

func TestValidate_File(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
pipelines:
  check-team-approvals:
    stages: [load-config, no-such-stage]
`), 0o644))

	_, err := execute(t, "validate", bad)
	assert.ErrorContains(t, err, "bad.yaml")

	_, err = execute(t, "validate", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestCheck_FlagErrors(t *testing.T) {
	_, err := execute(t, "check", "--org", "o1")
	assert.ErrorContains(t, err, "--org requires --team")
}

func TestCheck_RequiresDatabase(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("REVIEWPIPE_DATABASE__DSN", "")
	_, err := execute(t, "check")
	assert.ErrorContains(t, err, "database.dsn is required")
}

func TestCheck_EnqueueRequiresBrokers(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := execute(t, "check", "--enqueue", "--team", "t1")
	assert.ErrorContains(t, err, "kafka.brokers")
}

func TestNewApp_RequiresCodeHost(t *testing.T) {
	s := &settings.Settings{Database: settings.DatabaseSettings{DSN: "postgres://localhost/none"}}
	_, err := newApp(context.Background(), s, nil)
	assert.ErrorContains(t, err, "codehost.base_url")
}

func TestPipelineDefinitions(t *testing.T) {
	data, err := pipelineDefinitions(&settings.Settings{})
	require.NoError(t, err)
	assert.Nil(t, data)

	path := filepath.Join(t.TempDir(), "pipelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipelines: {}"), 0o644))
	data, err = pipelineDefinitions(&settings.Settings{Pipelines: settings.PipelinesSettings{File: path}})
	require.NoError(t, err)
	assert.Equal(t, "pipelines: {}", string(data))
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
