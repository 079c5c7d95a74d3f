package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	dir := t.TempDir()

	// A regular file used as a parent directory makes MkdirAll fail.
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	tests := []struct {
		name          string
		logLevel      string
		logFilePath   string
		expectedError bool
		expectedDebug bool
	}{
		{
			name:          "Valid debug log level with valid log file path",
			logLevel:      "debug",
			logFilePath:   filepath.Join(dir, "test_debug.log"),
			expectedDebug: true,
		},
		{
			name:        "Valid info log level with valid log file path",
			logLevel:    "info",
			logFilePath: filepath.Join(dir, "test_info.log"),
		},
		{
			name:          "Parent path is a file",
			logLevel:      "debug",
			logFilePath:   filepath.Join(blocker, "test.log"),
			expectedError: true,
		},
		{
			name:          "Invalid log level",
			logLevel:      "loud",
			logFilePath:   filepath.Join(dir, "test_level.log"),
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init(tt.logLevel, tt.logFilePath)
			if tt.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			InfoLogger.Info().Msg("This is an info message")
			ErrorLogger.Error().Msg("This is an error message")
			DebugLogger.Debug().Msg("This is a debug message")

			data, err := os.ReadFile(tt.logFilePath)
			require.NoError(t, err)
			logContent := string(data)

			assert.Contains(t, logContent, "This is an info message")
			assert.Contains(t, logContent, "This is an error message")
			if tt.expectedDebug {
				assert.Contains(t, logContent, "This is a debug message")
			} else {
				assert.NotContains(t, logContent, "This is a debug message")
			}
		})
	}
}

func TestInitWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWriter("debug", &buf))

	DebugLogger.Debug().Str("probe", "linux").Msg("cpu probe failed")
	assert.Contains(t, buf.String(), `"probe":"linux"`)

	assert.Error(t, InitWriter("nope", &buf))
}
