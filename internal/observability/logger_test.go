// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/franz/internal/config"
)

// -- Test Helper Functions --

func initWithBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("console logger colorizes levels", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "franz",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Info("turn started", zap.Int("turn", 3))

		out := buf.String()
		assert.Contains(t, out, ansiColors["green"]+"INFO"+colorReset)
		assert.Contains(t, out, "franz.")
		assert.Contains(t, out, "turn started")
		assert.Contains(t, out, `"turn": 3`)
	})

	t.Run("json logger emits structured entries", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"})

		GetLogger().Warn("sequence mismatch", zap.String("key", "value"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "sequence mismatch", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("level filters lower entries", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "warn", Format: "json"})
		GetLogger().Info("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "chatty", Format: "json"})
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("writes json to the log file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "franz.log")
		initWithBuffer(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1})

		GetLogger().Error("capture failed")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"capture failed"`)
	})

	t.Run("only the first call takes effect", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "First"})
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("returns the stored logger", func(t *testing.T) {
		initWithBuffer(t, config.LoggerConfig{Level: "info"})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestIsBenignSyncError(t *testing.T) {
	assert.True(t, isBenignSyncError(errors.New("sync /dev/stdout: invalid argument")))
	assert.False(t, isBenignSyncError(errors.New("disk full")))
}

func TestWatermillLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	adapter := NewWatermillLogger(zap.New(core))

	adapter.With(watermill.LogFields{"topic": "franz.turns"}).Info("subscribed", watermill.LogFields{"count": 2})
	adapter.Trace("tick", nil)
	adapter.Error("publish failed", errors.New("closed"), watermill.LogFields{"uuid": "abc"})

	require.Equal(t, 3, logs.Len())

	info := logs.All()[0]
	assert.Equal(t, "subscribed", info.Message)
	assert.Equal(t, "franz.turns", info.ContextMap()["topic"])
	assert.EqualValues(t, 2, info.ContextMap()["count"])

	assert.Equal(t, zapcore.DebugLevel, logs.All()[1].Level)

	errEntry := logs.All()[2]
	assert.Equal(t, zapcore.ErrorLevel, errEntry.Level)
	assert.Equal(t, "closed", errEntry.ContextMap()["error"])
	assert.Equal(t, "abc", errEntry.ContextMap()["uuid"])
}
