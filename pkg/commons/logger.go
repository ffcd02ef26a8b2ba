// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package commons

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging contract used throughout the bridge.
// Concrete call sites pick whichever flavour reads best: printf-style (Xf),
// key/value pairs (Xw), or a bare message with trailing fields (X).
type Logger interface {
	Debug(msg string, kv ...interface{})
	Debugf(format string, args ...interface{})
	Debugw(msg string, kv ...interface{})

	Info(msg string, kv ...interface{})
	Infof(format string, args ...interface{})
	Infow(msg string, kv ...interface{})

	Warn(msg string, kv ...interface{})
	Warnf(format string, args ...interface{})
	Warnw(msg string, kv ...interface{})

	Error(msg string, kv ...interface{})
	Errorf(format string, args ...interface{})
	Errorw(msg string, kv ...interface{})

	// Benchmark records the wall-clock duration of a named operation at debug level.
	Benchmark(operation string, d time.Duration)

	// With returns a derived logger carrying the given key/value pairs on
	// every subsequent entry — used to pin call_id across a Session's logs.
	With(kv ...interface{}) Logger
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewApplicationLogger builds the process-wide logger: JSON to stdout, plus a
// rotating file sink (lumberjack) when LOG_FILE is set. The returned sync
// func flushes buffered entries on shutdown.
func NewApplicationLogger() (Logger, func() error, error) {
	level := zapcore.InfoLevel
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(os.Stdout),
		level,
	)

	cores := []zapcore.Core{consoleCore}
	if path := os.Getenv("LOG_FILE"); path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotator),
			level,
		))
	}

	core := zapcore.NewTee(cores...)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	sugar := base.Sugar()

	return &zapLogger{sugar: sugar}, base.Sync, nil
}

func (l *zapLogger) Debug(msg string, kv ...interface{})  { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Debugf(f string, a ...interface{})     { l.sugar.Debugf(f, a...) }
func (l *zapLogger) Debugw(msg string, kv ...interface{})  { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})    { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Infof(f string, a ...interface{})      { l.sugar.Infof(f, a...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})   { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})    { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Warnf(f string, a ...interface{})      { l.sugar.Warnf(f, a...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})   { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{})   { l.sugar.Errorw(msg, kv...) }
func (l *zapLogger) Errorf(f string, a ...interface{})     { l.sugar.Errorf(f, a...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{})  { l.sugar.Errorw(msg, kv...) }

func (l *zapLogger) Benchmark(operation string, d time.Duration) {
	l.sugar.Debugw("benchmark", "operation", operation, "duration_ms", d.Milliseconds())
}

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(kv...)}
}

// NewTestLogger returns a no-frills development logger for unit tests.
func NewTestLogger() Logger {
	base, _ := zap.NewDevelopment()
	return &zapLogger{sugar: base.Sugar()}
}
