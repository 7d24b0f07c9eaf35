// Package log provides the process-wide zap logger.
package log

import (
	"fmt"

	"go.uber.org/zap"
)

// log starts as a no-op so packages can log before Init, and tests stay quiet.
var log = zap.NewNop().Sugar()
var baseLogger = zap.NewNop()

// Init initializes the package-level logger.
func Init(debug bool) error {
	var zapLogger *zap.Logger
	var err error

	if debug {
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	baseLogger = zapLogger
	log = zapLogger.Sugar()
	return nil
}

// Zap returns the base logger, for libraries that take one.
func Zap() *zap.Logger {
	return baseLogger
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = log.Sync()
}

func Debugf(template string, args ...any) {
	log.Debugf(template, args...)
}

func Infof(template string, args ...any) {
	log.Infof(template, args...)
}

func Infow(msg string, keysAndValues ...any) {
	log.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...any) {
	log.Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...any) {
	log.Warnw(msg, keysAndValues...)
}

func Errorf(template string, args ...any) {
	log.Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...any) {
	log.Errorw(msg, keysAndValues...)
}
