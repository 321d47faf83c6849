// Package logging builds the slog loggers used across tiercycle, backed by zap.
package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Config selects level and output format.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// ParseLevel parses DEBUG, INFO, WARN (or WARNING) and ERROR, case-insensitively.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "", "INFO":
		return zapcore.InfoLevel, nil
	case "WARN", "WARNING":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// NewZapLogger builds a zap logger from cfg. Console format uses zap's development
// encoder; anything else uses the production JSON encoder.
func NewZapLogger(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// SlogFromZap creates an *slog.Logger that writes straight to the zap core.
func SlogFromZap(z *zap.Logger) *slog.Logger {
	return slog.New(zapslog.NewHandler(z.Core(), zapslog.WithCaller(true)))
}

// New returns an slog logger and a sync func the caller should defer.
func New(cfg Config) (*slog.Logger, func(), error) {
	z, err := NewZapLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return SlogFromZap(z), func() { _ = z.Sync() }, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return SlogFromZap(zap.NewNop())
}
