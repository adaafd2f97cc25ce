package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is the leveled logger used by the risk-control loop. It writes to a
// per-day file under logDir and mirrors entries to stderr.
type Logger struct {
	account string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelAction  LogLevel = "ACTION" // mitigation actions against the exchange
	LogLevelStatus  LogLevel = "STATUS"
)

// NewLogger creates a file logger for the given account label
func NewLogger(account string) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := fmt.Sprintf("riskguard_%s_%s.log", account, time.Now().Format("2006-01-02"))
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		account: account,
		logFile: file,
		logger:  log.New(io.MultiWriter(file, os.Stderr), "", 0),
		logDir:  logDir,
	}
	l.writeSessionHeader()
	return l, nil
}

// NewTestLogger creates a logger that discards output, for use in tests
func NewTestLogger() *Logger {
	return &Logger{
		account: "test",
		logger:  log.New(io.Discard, "", 0),
	}
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
RISK GUARD SESSION STARTED
================================================================================
Account: %s
Started: %s
================================================================================`,
		l.account, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Action logs a mitigation action taken against the exchange
func (l *Logger) Action(format string, args ...interface{}) {
	l.Log(LogLevelAction, format, args...)
}

// Status logs periodic status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogError logs an error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogBreakerTrip logs a circuit breaker transition in a single scannable block
func (l *Logger) LogBreakerTrip(level string, reason string, observed float64, actions int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	block := fmt.Sprintf(`
[%s] [ACTION] ==================== BREAKER TRIPPED: %s ====================
Reason: %s
Observed value: %.6f
Mitigation actions dispatched: %d
====================================================================`,
		timestamp, level, reason, observed, actions)

	l.logger.Println(block)
}

// Close writes the session footer and closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		footer := fmt.Sprintf(`
================================================================================
RISK GUARD SESSION ENDED
================================================================================
Ended: %s
================================================================================
`, time.Now().Format("2006-01-02 15:04:05"))
		l.logger.Print(footer)
		return l.logFile.Close()
	}
	return nil
}
