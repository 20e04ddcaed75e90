package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI color codes for development logging.
const (
	Reset      = "\033[0m"
	DebugColor = "\033[36m" // Cyan
	InfoColor  = "\033[32m" // Green
	WarnColor  = "\033[33m" // Yellow
	ErrorColor = "\033[31m" // Red
	FatalColor = "\033[35m" // Magenta
)

// logger implements Logger using zap.
type logger struct {
	zap *zap.Logger
}

// NewDevelopmentLogger creates a colorized, human-readable logger for
// local runs and tests.
func NewDevelopmentLogger() Logger {
	return &logger{zap: createDevelopmentLogger(zapcore.DebugLevel)}
}

// createDevelopmentLogger builds a console-encoded zap core with colored
// level names.
func createDevelopmentLogger(level zapcore.Level) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    customColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	encoder := zapcore.NewConsoleEncoder(encoderConfig)
	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(os.Stdout),
		zap.NewAtomicLevelAt(level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// customColorLevelEncoder adds colors to log levels.
func customColorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string
	switch level {
	case zapcore.DebugLevel:
		color = DebugColor
	case zapcore.InfoLevel:
		color = InfoColor
	case zapcore.WarnLevel:
		color = WarnColor
	case zapcore.ErrorLevel:
		color = ErrorColor
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		color = FatalColor
	default:
		color = Reset
	}

	enc.AppendString(color + level.CapitalString() + Reset)
}

func (l *logger) Debug(msg string, fields ...Field) { l.zap.Debug(msg, fieldsToZap(fields)...) }
func (l *logger) Info(msg string, fields ...Field)  { l.zap.Info(msg, fieldsToZap(fields)...) }
func (l *logger) Warn(msg string, fields ...Field)  { l.zap.Warn(msg, fieldsToZap(fields)...) }
func (l *logger) Error(msg string, fields ...Field) { l.zap.Error(msg, fieldsToZap(fields)...) }
func (l *logger) Fatal(msg string, fields ...Field) { l.zap.Fatal(msg, fieldsToZap(fields)...) }

func (l *logger) With(fields ...Field) Logger {
	return &logger{zap: l.zap.With(fieldsToZap(fields)...)}
}

func (l *logger) Named(name string) Logger {
	return &logger{zap: l.zap.Named(name)}
}

// TransportLogger creates a logger named for one transport, carrying the
// fields every log line from that transport should show.
func TransportLogger(base Logger, transportName string) Logger {
	return base.Named("eventbus." + transportName).With(String("transport", transportName))
}

// fieldsToZap converts Field interfaces to zap.Field, reusing the concrete
// zap field each constructor in fields.go already built rather than
// re-encoding through zap.Any.
func fieldsToZap(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = field.ZapField()
	}
	return zapFields
}

// Must wraps a function call and logs any error fatally.
func Must(err error, logger Logger, msg string, fields ...Field) {
	if err != nil {
		allFields := append(fields, Error(err))
		logger.Fatal(msg, allFields...)
	}
}
