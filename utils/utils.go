package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sammcj/gollama-planner/logging"
)

const appDirName = "gollama-planner"

func GetHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		logging.ErrorLogger.Error().Err(err).Msg("failed to get user home directory")
		return ""
	}
	return homeDir
}

// GetConfigDir returns the directory of the configuration JSON file.
func GetConfigDir() string {
	return filepath.Join(GetHomeDir(), ".config", appDirName)
}

// GetConfigPath returns the path to the configuration JSON file.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(GetHomeDir(), path[1:])
}
