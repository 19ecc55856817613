package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/riotam/internal/config"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "log", "backend.log")
	cfg := &config.Config{LogLevel: "info", LogFile: logFile, LogJSON: true}

	logger, closer, err := New(cfg)
	require.NoError(t, err)

	logger.Info().Str("board", "native").Msg("build finished")
	logger.Debug().Msg("not written")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"board":"native"`)
	assert.Contains(t, string(data), "build finished")
	assert.NotContains(t, string(data), "not written")
}

func TestNew_VerboseLowersLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "warn", Verbose: true}

	logger, _, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(&config.Config{LogLevel: "chatty"})
	assert.Error(t, err)
}
