// Package logging provides session-scoped debug logging for hivemind
// components. All components of one process write to a single log file
// named after the session ID, so one worker incarnation leaves one
// trace on disk.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger writes structured lines for one component to the session log
// file, falling back to stderr when the file cannot be opened.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	logger    *log.Logger
	logPath   string
	mu        sync.Mutex
	closeOnce sync.Once
}

var (
	sessionID     string
	sessionIDOnce sync.Once

	logDir   string
	initOnce sync.Once
	initErr  error
)

func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory resolves and creates the log directory. The
// HIVEMIND_LOG_DIR environment variable overrides the default of
// ~/.hivemind/logs.
func initLogDirectory() error {
	initOnce.Do(func() {
		if dir := os.Getenv("HIVEMIND_LOG_DIR"); dir != "" {
			logDir = dir
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("logging: resolve home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".hivemind", "logs")
		}
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			initErr = fmt.Errorf("logging: create log directory: %w", err)
		}
	})
	return initErr
}

// NewLogger creates a logger for one component, writing to
// <logdir>/<session-id>-hivemind.log. On failure it returns a stderr
// fallback logger along with the error, so callers always get a usable
// logger.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-hivemind.log", sessID))

	// Append mode: multiple components share the session file.
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		wrapped := fmt.Errorf("logging: open log file: %w", err)
		return newFallbackLogger(component, wrapped), wrapped
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		logger:    log.New(file, "", 0),
		logPath:   logPath,
	}, nil
}

func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags)
	logger.Printf("WARNING: file logging unavailable: %v", err)
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		logger:    logger,
	}
}

func (l *Logger) emit(level, format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("[%s] [%s] [%s] %s", ts, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...any) { l.emit("DEBUG", format, v...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...any) { l.emit("INFO", format, v...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...any) { l.emit("WARN", format, v...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...any) { l.emit("ERROR", format, v...) }

// SessionID returns this process's session ID.
func (l *Logger) SessionID() string { return l.sessionID }

// LogPath returns the log file path, empty in fallback mode.
func (l *Logger) LogPath() string { return l.logPath }

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
