package tree

import "log/slog"

// Option is a functional option for configuring an AccountRoot, the same
// pattern client.Option and engine.Option already use.
type Option func(*Options)

// Options holds tree package configuration.
type Options struct {
	// Logger receives debug-level records for fetch/loading state
	// transitions (children fetched, message list resized, a message
	// or body part fetched) and is otherwise silent.
	Logger *slog.Logger
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Logger: slog.Default(),
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
