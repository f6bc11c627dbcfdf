// Package logger wraps the process-wide structured logger. Every other
// package calls Info/Warn/Error/Errorf/Debug instead of touching zap
// directly, the way the teacher's call sites (lib/logger.Info, .Warn, ...)
// already assumed before this package existed.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu  sync.RWMutex
	log = newDefault()
)

// Settings configures log level and optional file rotation.
type Settings struct {
	Level      string // error|warn|info|debug
	Filename   string // empty = stderr only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func newDefault() *zap.SugaredLogger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(cfg)
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
	return zap.New(core).Sugar()
}

// Setup rebuilds the global logger from Settings. Called once at startup
// from the CLI after the config file and flags have been parsed.
func Setup(s Settings) {
	level := parseLevel(s.Level)
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(cfg)

	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	if s.Filename != "" {
		rotator := &lumberjack.Logger{
			Filename:   s.Filename,
			MaxSize:    orDefault(s.MaxSizeMB, 100),
			MaxBackups: orDefault(s.MaxBackups, 7),
			MaxAge:     orDefault(s.MaxAgeDays, 30),
		}
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.AddSync(rotator))
	}

	core := zapcore.NewCore(encoder, sink, level)
	newLog := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()

	mu.Lock()
	log = newLog
	mu.Unlock()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(args ...interface{}) { current().Debug(args...) }
func Info(args ...interface{})  { current().Info(args...) }
func Warn(args ...interface{})  { current().Warn(args...) }
func Error(args ...interface{}) { current().Error(args...) }

func Debugf(format string, args ...interface{}) { current().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { current().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { current().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { current().Errorf(format, args...) }

// Sync flushes buffered log entries. Called on graceful shutdown.
func Sync() error {
	return current().Sync()
}
