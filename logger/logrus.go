package logger

import (
	"github.com/sirupsen/logrus"

	"clockdb"
)

// Logrus wraps a logrus.Logger to implement clockdb.Logger.
type Logrus struct {
	entry *logrus.Entry
}

// NewLogrus creates a clockdb.Logger from a logrus.Logger.
func NewLogrus(logger *logrus.Logger) *Logrus {
	return &Logrus{entry: logrus.NewEntry(logger)}
}

// Named returns a logger whose entries carry a "component" field.
func (l *Logrus) Named(component string) *Logrus {
	return &Logrus{entry: l.entry.WithField("component", component)}
}

// Error logs an error message with key-value pairs.
func (l *Logrus) Error(msg string, args ...any) {
	l.entry.WithFields(argsToFields(args)).Error(msg)
}

// Warn logs a warning message with key-value pairs.
func (l *Logrus) Warn(msg string, args ...any) {
	l.entry.WithFields(argsToFields(args)).Warn(msg)
}

// Info logs an info message with key-value pairs.
func (l *Logrus) Info(msg string, args ...any) {
	l.entry.WithFields(argsToFields(args)).Info(msg)
}

// argsToFields pairs up slog-style arguments. A trailing key without a value
// and non-string keys are dropped; errors go under logrus.ErrorKey.
func argsToFields(args []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if err, isErr := args[i+1].(error); isErr && key == "error" {
			fields[logrus.ErrorKey] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

var _ clockdb.Logger = (*Logrus)(nil)
