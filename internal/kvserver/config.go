//go:build linux

package kvserver

import "time"

// Config holds everything about a Server's setup that spec.md pins to
// compile-time constants. The constants become the defaults; nothing
// in this port reads them from a flag or environment variable, but
// exposing them as a Config/ServerOption pair keeps the constructor
// testable against non-default values (a different port, a smaller
// ring, a shrunk buffer group) without touching package-level state.
type Config struct {
	ListenAddr string

	RingDepth   uint32
	BufferSlots int
	BufferSize  int

	ShutdownTimeout time.Duration
}

// DefaultConfig returns the configuration spec.md requires: dual-stack
// port 6379, a 64-entry ring, and a 1024x512B buffer group.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "[::]:6379",
		RingDepth:       64,
		BufferSlots:     1024,
		BufferSize:      512,
		ShutdownTimeout: 5 * time.Second,
	}
}

// ServerOption mutates a Config at construction time.
type ServerOption func(*Config)

// WithListenAddr overrides the dual-stack listen address.
func WithListenAddr(addr string) ServerOption {
	return func(c *Config) { c.ListenAddr = addr }
}

// WithRingDepth overrides the submission ring depth.
func WithRingDepth(depth uint32) ServerOption {
	return func(c *Config) { c.RingDepth = depth }
}

// WithShutdownTimeout overrides how long Shutdown waits for the
// server's running flag to be cleared before forcing teardown.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(c *Config) { c.ShutdownTimeout = d }
}
