// Package logger wraps a process-wide zap sugared logger.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.SugaredLogger

// InitZap logger with default writer to stdout
func InitZap(opts ...OptionFunc) {
	opt := Option{
		MultiWriter: []io.Writer{os.Stdout},
	}
	for _, o := range opts {
		o(&opt)
	}

	level := zapcore.DebugLevel
	if opt.Level != "" {
		if l, err := zapcore.ParseLevel(opt.Level); err == nil {
			level = l
		}
	}

	encCfg := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		MessageKey: "message",

		LevelKey:    "level",
		EncodeLevel: zapcore.CapitalLevelEncoder,

		TimeKey:    "time",
		EncodeTime: zapcore.ISO8601TimeEncoder,

		CallerKey:    "caller",
		EncodeCaller: zapcore.ShortCallerEncoder,
	})

	var cores []zapcore.Core
	for _, w := range opt.MultiWriter {
		cores = append(cores, zapcore.NewCore(encCfg, zapcore.AddSync(w), level))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	if opt.Service != "" {
		base = base.With(zap.String("service", opt.Service))
	}
	logger = base.Sugar()
}

// Sync flushes buffered entries.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// Log writes message with the operation context and scope attached.
func Log(level zapcore.Level, message string, context string, scope string) {
	if logger == nil {
		return
	}
	entry := logger.With(
		zap.String("context", context),
		zap.String("scope", scope),
	)
	entry.Log(level, message)
}

// LogWithField func
func LogWithField(level zapcore.Level, fields map[string]any) {
	if logger == nil {
		return
	}

	var message any
	var args []any
	for k, v := range fields {
		if k == "message" {
			message = v
			continue
		}
		args = append(args, k, v)
	}
	logger.With(args...).Log(level, message)
}

// LogE error
func LogE(message string) {
	if logger != nil {
		logger.Error(message)
	}
}

// LogW warning
func LogW(message string) {
	if logger != nil {
		logger.Warn(message)
	}
}

// LogI info
func LogI(message string) {
	if logger != nil {
		logger.Info(message)
	}
}

// LogIf info with format
func LogIf(format string, i ...any) {
	if logger != nil {
		logger.Infof(format, i...)
	}
}
