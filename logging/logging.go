package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	defaultLogger     = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger            *slog.Logger
	loggerInitialized = false
	loggerMu          sync.RWMutex
)

// init installs the default logger so that packages asking for a logger
// before CreateLogger runs still get something usable.
func init() {
	logger = defaultLogger
}

// CreateLogger initializes and returns a new JSON logger writing to stdout,
// configured with the desired log level and service name.
func CreateLogger(levelStr string, serviceName string) *slog.Logger {

	return CreateLoggerWithWriter(os.Stdout, levelStr, serviceName)
}

// CreateLoggerWithWriter is CreateLogger with an explicit destination. The
// new logger replaces the package logger.
func CreateLoggerWithWriter(writer io.Writer, levelStr string, serviceName string) *slog.Logger {

	logLevel, logLevelErr := GetLogLevel(levelStr)
	// Note: handling error after logging has been initialized below

	newLogger := slog.New(slog.NewJSONHandler(writer,
		&slog.HandlerOptions{
			Level: logLevel,
		})).With("service", serviceName)

	SetLogger(newLogger)

	returnedLogger, _ := GetLogger()
	if logLevelErr != nil {
		returnedLogger.Error(fmt.Sprintf("unable to get log level: %v", logLevelErr))
	}

	return returnedLogger
}

// GetLogLevel converts a string to slog.Level
func GetLogLevel(levelStr string) (slog.Level, error) {

	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "notice":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "crit", "critical":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: use debug, info, warn, or error")
	}
}

// SetLogger allows callers to inject their own logger.
func SetLogger(customLogger *slog.Logger) {

	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = customLogger
	loggerInitialized = true
}

// GetLogger safely retrieves the current logger, and whether it was
// initialized, or is using the default.
func GetLogger() (*slog.Logger, bool) {

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger, loggerInitialized
}

// ResetLogger restores the default logger. Intended for tests.
func ResetLogger() {

	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = defaultLogger
	loggerInitialized = false
}
