package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHomeDir(t *testing.T) {
	assert.Equal(t, homeDir(), GetHomeDir())
}

func TestGetConfigDir(t *testing.T) {
	assert.Equal(t, filepath.Join(homeDir(), ".config", "gollama-planner"), GetConfigDir())
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join(homeDir(), ".config", "gollama-planner", "config.json"), GetConfigPath())
}

func TestExpandHome(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"~/models", filepath.Join(homeDir(), "models")},
		{"/var/log/planner.log", "/var/log/planner.log"},
		{"relative/path", "relative/path"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandHome(tt.in), tt.in)
	}
}

func homeDir() string {
	var env string
	if runtime.GOOS == "windows" {
		env = "USERPROFILE"
	} else {
		env = "HOME"
	}
	return os.Getenv(env)
}
