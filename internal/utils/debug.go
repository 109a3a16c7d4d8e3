package utils

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu    sync.RWMutex
	sugar    = zap.NewNop().Sugar()
	logsDir  string
	logLevel = zap.NewAtomicLevelAt(zapcore.DebugLevel)
)

// ConfigureDebug points the debug log at a new debug-<timestamp>.log file in
// dir. Until it is called, Debug is a no-op.
func ConfigureDebug(dir string) {
	logMu.Lock()
	defer logMu.Unlock()

	if dir == "" {
		return
	}
	logsDir = dir

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(dir, fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     7, // days
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(writer), logLevel)
	sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// SetLogLevel changes the level of the configured logger ("debug", "info", ...)
func SetLogLevel(level string) error {
	return logLevel.UnmarshalText([]byte(level))
}

// LogsDir returns the directory passed to ConfigureDebug
func LogsDir() string {
	logMu.RLock()
	defer logMu.RUnlock()
	return logsDir
}

// Logger returns the structured logger behind Debug
func Logger() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	return sugar
}

// Debug writes a formatted debug line
func Debug(format string, args ...any) {
	logMu.RLock()
	l := sugar
	logMu.RUnlock()
	l.Debugf(format, args...)
}

// SyncDebug flushes buffered log entries
func SyncDebug() {
	_ = Logger().Sync()
}
