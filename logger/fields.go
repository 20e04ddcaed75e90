package logger

import (
	"time"

	"go.uber.org/zap"
)

// CustomField is the concrete Field implementation used by every field
// constructor below.
type CustomField struct {
	key   string
	value interface{}
	zf    zap.Field
}

func (f *CustomField) Key() string          { return f.key }
func (f *CustomField) Value() interface{}   { return f.value }
func (f *CustomField) ZapField() zap.Field  { return f.zf }

func field(key string, value interface{}, zf zap.Field) Field {
	return &CustomField{key: key, value: value, zf: zf}
}

// String creates a string field.
func String(key, value string) Field { return field(key, value, zap.String(key, value)) }

// Int creates an int field.
func Int(key string, value int) Field { return field(key, value, zap.Int(key, value)) }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return field(key, value, zap.Int64(key, value)) }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return field(key, value, zap.Bool(key, value)) }

// Float64 creates a float64 field.
func Float64(key string, value float64) Field { return field(key, value, zap.Float64(key, value)) }

// Duration creates a duration field, rendered using zap's duration encoder.
func Duration(key string, value time.Duration) Field {
	return field(key, value, zap.Duration(key, value))
}

// Time creates a timestamp field.
func Time(key string, value time.Time) Field { return field(key, value, zap.Time(key, value)) }

// Error creates a field named "error" carrying err; a nil err renders as
// the empty string rather than panicking on a nil interface.
func Error(err error) Field {
	if err == nil {
		return field("error", "", zap.String("error", ""))
	}
	return field("error", err.Error(), zap.Error(err))
}

// Any creates a field from an arbitrary value, deferring to zap's reflection
// based encoder.
func Any(key string, value interface{}) Field { return field(key, value, zap.Any(key, value)) }

// Strings creates a field from a string slice.
func Strings(key string, values []string) Field {
	return field(key, values, zap.Strings(key, values))
}

// Stack creates a field carrying the current goroutine's stack trace under
// the given key.
func Stack(key string) Field { return field(key, "stack", zap.Stack(key)) }

// F is a terse alias for Any, kept for call sites that don't care about the
// underlying type.
func F(key string, value interface{}) Field { return Any(key, value) }
