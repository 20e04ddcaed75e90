package logger

import (
	"go.uber.org/zap"
)

// Logger is the structured, leveled logging contract every component in
// this module is handed at construction time.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// With returns a logger that always carries fields in addition to
	// whatever a call site passes.
	With(fields ...Field) Logger
	// Named returns a logger scoped under name, joined with dots to any
	// existing name.
	Named(name string) Logger
}

// Field represents a structured log field.
type Field interface {
	Key() string
	Value() interface{}
	// ZapField returns the underlying zap.Field for efficient conversion.
	ZapField() zap.Field
}
