package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	DebugLogger = zerolog.Nop()
	InfoLogger  = zerolog.Nop()
	ErrorLogger = zerolog.Nop()
)

// DefaultLogFilePath is used when Init is called without a path.
func DefaultLogFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "gollama-planner", "planner.log"), nil
}

// Init sends all loggers to a rotating log file at logFilePath.
func Init(logLevel string, logFilePath string) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return err
	}

	if logFilePath == "" {
		if logFilePath, err = DefaultLogFilePath(); err != nil {
			return err
		}
	}
	if strings.HasPrefix(logFilePath, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		logFilePath = filepath.Join(homeDir, logFilePath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return err
	}

	// lumberjack opens the file lazily; open it once so bad paths fail here.
	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	f.Close()

	rotate := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    2,  // megabytes
		MaxBackups: 3,  // number of files
		MaxAge:     60, // days
	}

	zerolog.SetGlobalLevel(level)
	setLoggers(rotate)
	DebugLogger.Debug().Str("path", logFilePath).Msg("logging initialised")
	return nil
}

// InitWriter points all loggers at w, for tests and the --log-stderr flag.
func InitWriter(logLevel string, w io.Writer) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	setLoggers(w)
	return nil
}

func setLoggers(w io.Writer) {
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	DebugLogger = log.Logger.Level(zerolog.DebugLevel)
	InfoLogger = log.Logger.Level(zerolog.InfoLevel)
	ErrorLogger = log.Logger.Level(zerolog.ErrorLevel)
}
