package logger

import (
	"go.uber.org/zap"

	"clockdb"
)

// Zap wraps a zap.Logger to implement clockdb.Logger.
type Zap struct {
	logger *zap.SugaredLogger
}

// NewZap creates a clockdb.Logger from a zap.Logger.
func NewZap(logger *zap.Logger) *Zap {
	return &Zap{logger: logger.Sugar()}
}

// Named returns a logger whose entries carry the component name, e.g.
// "buffer" or "index".
func (z *Zap) Named(component string) *Zap {
	return &Zap{logger: z.logger.Named(component)}
}

// Error logs an error message with key-value pairs.
func (z *Zap) Error(msg string, args ...any) {
	z.logger.Errorw(msg, args...)
}

// Warn logs a warning message with key-value pairs.
func (z *Zap) Warn(msg string, args ...any) {
	z.logger.Warnw(msg, args...)
}

// Info logs an info message with key-value pairs.
func (z *Zap) Info(msg string, args ...any) {
	z.logger.Infow(msg, args...)
}

var _ clockdb.Logger = (*Zap)(nil)
