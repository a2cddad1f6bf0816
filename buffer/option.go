package buffer

import "clockdb/internal/base"

// Logger is the structured logger accepted by the Manager.
type Logger = base.Logger

// Options configures a Manager.
type Options struct {
	logger Logger
}

// Option configures a Manager.
type Option func(*Options)

func defaultOptions() Options {
	return Options{logger: base.DiscardLogger{}}
}

// WithLogger sets the logger used for eviction and write-back failures.
func WithLogger(logger Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
