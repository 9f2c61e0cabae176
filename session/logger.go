package session

import (
	"log/slog"
	"sync"

	"github.com/dfcx-bridge/go-bridge/logging"
)

var (
	sessionLogger     *slog.Logger
	sessionLoggerSet  bool // true once the process logger replaced the default
	sessionLoggerLock sync.Mutex
)

// getLogger returns the logger shared by sessions. Until the process
// configures logging it keeps asking for the current one, so sessions started
// early still pick up the configured logger later.
func getLogger() *slog.Logger {

	sessionLoggerLock.Lock()
	defer sessionLoggerLock.Unlock()

	if sessionLoggerSet {
		return sessionLogger
	}

	var configured bool
	sessionLogger, configured = logging.GetLogger()
	sessionLoggerSet = configured

	return sessionLogger
}
