// Package log is the logging surface of the credit-risk pipeline.
//
// Library code (estimators, SMOTE, the pipeline) logs through a Logger obtained
// from the package provider, which is zerolog-backed. The CLI and the HTTP
// server log through the default slog logger that SetupLogger installs. Both
// share the attribute keys in attributes.go so records can be joined on
// artifact id and operation.
//
//	logger := log.GetLoggerWithName("pipeline").With(log.ArtifactIDKey, artifact.ID)
//	logger.Info("Training started", log.OperationKey, log.OperationFit, log.SamplesKey, 800)
package log

import (
	"context"
	"log/slog"
)

// Logger takes slog-style alternating key/value fields. Error treats a leading
// error value as the record's error:
//
//	logger.Error("Model training failed", err, log.SamplesKey, n)
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	With(fields ...any) Logger
	Enabled(ctx context.Context, level Level) bool
}

// Level is slog's level so both halves of the package agree on thresholds.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// LoggerProvider hands out loggers that share one sink and level.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
