package client

import (
	"crypto/tls"
	"log/slog"
	"time"
)

// Option is a functional option for configuring the client.
type Option func(*Options)

// Options holds all client configuration.
type Options struct {
	// TLSConfig is the TLS configuration used by DialTLS and StartTLS.
	TLSConfig *tls.Config

	// Logger is the structured logger.
	Logger *slog.Logger

	// LiteralContinuationTimeout bounds how long a synchronizing
	// literal waits for the server's "+" before failing. Zero keeps
	// the engine's default.
	LiteralContinuationTimeout time.Duration

	// TagPrefix is prepended to generated command tags. Empty keeps
	// the engine's default.
	TagPrefix string

	// UnilateralDataHandler handles unsolicited server responses.
	UnilateralDataHandler *UnilateralDataHandler

	// DebugLog enables wire-level protocol logging: every line the
	// engine reads, writes, or fails to parse is recorded at debug
	// level on Logger. Off by default to keep the hot path quiet.
	DebugLog bool
}

// UnilateralDataHandler handles unsolicited server data.
type UnilateralDataHandler struct {
	Expunge func(seqNum uint32)
	Exists  func(count uint32)
	Recent  func(count uint32)
	Fetch   func(seqNum uint32, flags []string)
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Logger: slog.Default(),
	}
}

// WithTLSConfig sets the TLS configuration.
func WithTLSConfig(config *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = config
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithLiteralContinuationTimeout bounds the wait for a "+" before a
// synchronizing literal write fails.
func WithLiteralContinuationTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.LiteralContinuationTimeout = d
	}
}

// WithTagPrefix sets the prefix used for generated command tags.
func WithTagPrefix(prefix string) Option {
	return func(o *Options) {
		o.TagPrefix = prefix
	}
}

// WithUnilateralDataHandler sets the handler for unsolicited data.
func WithUnilateralDataHandler(h *UnilateralDataHandler) Option {
	return func(o *Options) {
		o.UnilateralDataHandler = h
	}
}

// WithDebugLog enables wire-level protocol logging.
func WithDebugLog(enable bool) Option {
	return func(o *Options) {
		o.DebugLog = enable
	}
}
