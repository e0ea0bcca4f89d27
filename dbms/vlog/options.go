package vlog

import "go.uber.org/zap"

// DefaultCacheSize is the number of decoded records kept in memory.
const DefaultCacheSize = 1024

type options struct {
	logger    *zap.Logger
	cacheSize int
}

// Option configures a Log.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCacheSize sets the record cache capacity. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.cacheSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    zap.NewNop(),
		cacheSize: DefaultCacheSize,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
