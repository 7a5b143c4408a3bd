package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	applogging "github.com/andrescamacho/fleettrack-go/internal/application/logging"
	"github.com/andrescamacho/fleettrack-go/internal/infrastructure/config"
)

// ZapLogger adapts a zap logger to the application logging contract
type ZapLogger struct {
	zl *zap.Logger
}

// NewLogger builds a logger from configuration: level, format, output
// destination, and optional file rotation.
func NewLogger(cfg *config.LoggingConfig) (*ZapLogger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "stderr":
		sink = zapcore.AddSync(os.Stderr)
	case "file":
		if cfg.Rotation.Enabled {
			sink = zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.Rotation.MaxSize,
				MaxBackups: cfg.Rotation.MaxBackups,
				MaxAge:     cfg.Rotation.MaxAge,
				Compress:   cfg.Rotation.Compress,
			})
		} else {
			f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, err
			}
			sink = zapcore.AddSync(f)
		}
	default:
		sink = zapcore.AddSync(os.Stdout)
	}

	var opts []zap.Option
	if cfg.IncludeCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if cfg.IncludeStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	core := zapcore.NewCore(encoder, sink, level)
	return &ZapLogger{zl: zap.New(core, opts...)}, nil
}

var _ applogging.Logger = (*ZapLogger)(nil)

// Log emits one structured entry at the named level
func (l *ZapLogger) Log(level, message string, fields map[string]interface{}) {
	zfields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}
	switch level {
	case "debug":
		l.zl.Debug(message, zfields...)
	case "warn":
		l.zl.Warn(message, zfields...)
	case "error":
		l.zl.Error(message, zfields...)
	default:
		l.zl.Info(message, zfields...)
	}
}

// Zap exposes the underlying logger for infrastructure code
func (l *ZapLogger) Zap() *zap.Logger {
	return l.zl
}

// Sync flushes buffered entries; call on shutdown
func (l *ZapLogger) Sync() {
	_ = l.zl.Sync()
}
