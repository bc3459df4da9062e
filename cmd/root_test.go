// File: cmd/root_test.go
package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/franz/internal/config"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t)
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "franz "+Version), out)
}

func TestConfigCmd_PrintsEffectiveConfig(t *testing.T) {
	resetForTest(t)
	path := writeConfig(t, `
server:
  port: 4321
inference:
  api_key: sk-should-not-print
ui:
  box_color: "#ff0000"
`)
	t.Setenv("FRANZ_ENGINE_WORKER_CONCURRENCY", "7")

	out, err := executeCommand(t, "config", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-should-not-print")

	var printed config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &printed))
	assert.Equal(t, 4321, printed.ServerCfg.Port)
	assert.Equal(t, 7, printed.EngineCfg.WorkerConcurrency)
	assert.Equal(t, "#ff0000", printed.UICfg["box_color"])
	assert.Equal(t, config.DefaultOpenAIEndpoint, printed.InferenceCfg.Endpoint)
}

func TestConfigCmd_InvalidConfigFails(t *testing.T) {
	resetForTest(t)
	path := writeConfig(t, "server:\n  port: 70000\n")

	_, err := executeCommand(t, "config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestConfigCmd_UnreadableFileFails(t *testing.T) {
	resetForTest(t)
	path := writeConfig(t, "server: [unterminated\n")

	_, err := executeCommand(t, "config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
}

func TestGetConfigFromContext(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	assert.EqualError(t, err, "configuration not loaded")

	cfg := config.NewDefaultConfig()
	got, err := getConfigFromContext(context.WithValue(context.Background(), configKey, cfg))
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}
