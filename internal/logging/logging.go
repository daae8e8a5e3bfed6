package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a log level name such as "debug" or "info"
type Level string

// Style selects the log encoding
type Style string

const (
	StyleTerminal Style = "terminal"
	StyleJSON     Style = "json"
	StyleLogfmt   Style = "logfmt"
	StyleNoop     Style = "noop"
)

// Config holds logger settings
type Config struct {
	Level Level
	Style Style
}

// NewLogger builds a zap logger writing to stderr. Unknown levels fall back
// to info and unknown styles to terminal.
func NewLogger(cfg *Config) *zap.Logger {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Style == StyleNoop {
		return zap.NewNop()
	}

	level, err := zapcore.ParseLevel(strings.ToLower(string(cfg.Level)))
	if err != nil {
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(newEncoder(cfg.Style), zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func newEncoder(style Style) zapcore.Encoder {
	switch style {
	case StyleJSON:
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(enc)
	case StyleLogfmt:
		// zap has no logfmt encoder; console without colour keeps one line per entry
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		enc.ConsoleSeparator = " "
		return zapcore.NewConsoleEncoder(enc)
	default:
		enc := zap.NewDevelopmentEncoderConfig()
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(enc)
	}
}
