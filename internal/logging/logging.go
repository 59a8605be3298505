// Package logging provides the structured logger used across every
// component: a thin zap wrapper with a sugared, key-value call surface and
// lumberjack-backed file rotation.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the call surface every component depends on. It's an interface
// so tests can substitute a no-op or observed logger without pulling in zap.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Warnw(msg string, kv ...any)
	Errorw(msg string, kv ...any)
	Infow(msg string, kv ...any)
	With(kv ...any) Logger
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// Config controls output destinations and rotation. File is optional; when
// empty, output goes to stderr only.
type Config struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	JSON       bool
}

// New builds a Logger from Config, writing to stderr and, if File is set,
// additionally to a lumberjack-rotated file.
func New(cfg Config) (Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		_ = level.UnmarshalText([]byte(cfg.Level))
	}

	var encoder zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level),
	}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    nonZero(cfg.MaxSizeMB, 100),
			MaxBackups: nonZero(cfg.MaxBackups, 5),
			MaxAge:     nonZero(cfg.MaxAgeDays, 28),
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{s: base.Sugar()}, nil
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *zapLogger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }
func (l *zapLogger) Warnw(msg string, kv ...any)       { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...any)      { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...any)       { l.s.Infow(msg, kv...) }
func (l *zapLogger) Sync() error                       { return l.s.Sync() }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}
