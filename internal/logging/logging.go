package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the level, encoding and destination of the logger
type Options struct {
	Level  string
	Format string // "json" or "console"
	File   string
}

// New builds a logger writing to File, or to stderr when File is empty.
// stdout is left free for command output and the MCP stdio transport.
func New(opts Options) (*zap.Logger, error) {
	var output zapcore.WriteSyncer
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		output = zapcore.AddSync(f)
	} else {
		output = zapcore.Lock(os.Stderr)
	}

	return newLogger(opts, output), nil
}

func newLogger(opts Options, output zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, output, parseLogLevel(opts.Level))
	return zap.New(core)
}

// parseLogLevel converts a string log level to a zapcore.Level.
func parseLogLevel(logLevel string) zapcore.Level {
	switch logLevel {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
