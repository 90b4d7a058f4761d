package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category loggers. They start as no-op loggers so packages can log before
// (or without) InitLoggers, e.g. in tests.
var (
	ErrorLogger    = zap.NewNop()
	AuditLogger    = zap.NewNop()
	RequestLogger  = zap.NewNop()
	SecurityLogger = zap.NewNop()
	SystemLogger   = zap.NewNop()
)

func newLogger(dir, name string, level zapcore.Level) (*zap.Logger, error) {
	ws := zapcore.AddSync(os.Stdout)
	if dir != "" {
		file, err := os.OpenFile(filepath.Join(dir, name+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		ws = zapcore.AddSync(file)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		ws,
		level,
	)
	return zap.New(core).With(zap.String("category", name)), nil
}

// InitLoggers builds the category loggers. With an empty dir every category
// writes to stdout, otherwise to <dir>/<category>.log.
func InitLoggers(dir string) error {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}

	loggers := []struct {
		target **zap.Logger
		name   string
		level  zapcore.Level
	}{
		{&ErrorLogger, "errors", zapcore.ErrorLevel},
		{&AuditLogger, "audit", zapcore.InfoLevel},
		{&RequestLogger, "request", zapcore.InfoLevel},
		{&SecurityLogger, "security", zapcore.WarnLevel},
		{&SystemLogger, "system", zapcore.InfoLevel},
	}
	for _, l := range loggers {
		zl, err := newLogger(dir, l.name, l.level)
		if err != nil {
			return fmt.Errorf("create %s logger: %w", l.name, err)
		}
		*l.target = zl
	}
	return nil
}

func SyncLoggers() {
	_ = ErrorLogger.Sync()
	_ = AuditLogger.Sync()
	_ = RequestLogger.Sync()
	_ = SecurityLogger.Sync()
	_ = SystemLogger.Sync()
}
