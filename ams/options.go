package ams

import "time"

// Options configures a Router and the AmsConnections it creates. There is
// no config file and no environment variable parsing, matching the
// teacher's style of plain constructor arguments — and spec.md §6, which
// names no required environment variables for the core.
type Options struct {
	// PortBase and PortEnd bound the local AMS port range the Router
	// leases from and the range AmsConnection's slot table is sized to.
	PortBase uint16
	PortEnd  uint16

	// AdsPort is the remote TCP port ADS devices listen on.
	AdsPort uint16

	// DialTimeout bounds AmsConnection's initial TCP connect.
	DialTimeout time.Duration

	// DefaultWaitTimeout is filled in by WithDefaults. No request in this
	// package reads it: DeleteNotification and NotificationHandle take an
	// explicit timeout.
	DefaultWaitTimeout time.Duration

	// RingCapacity sizes every dispatcher's notification ring, in bytes.
	RingCapacity int

	// Logger receives warnings and info about drained/malformed frames.
	// A default backed by log/slog is used if nil.
	Logger Logger
}

// WithDefaults returns a copy of opts with zero-valued fields filled in.
func (opts Options) WithDefaults() Options {
	if opts.PortBase == 0 {
		opts.PortBase = 30000
	}
	if opts.PortEnd == 0 {
		opts.PortEnd = 30100
	}
	if opts.AdsPort == 0 {
		opts.AdsPort = 48898
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.DefaultWaitTimeout == 0 {
		opts.DefaultWaitTimeout = 5 * time.Second
	}
	if opts.RingCapacity == 0 {
		opts.RingCapacity = defaultRingCapacity
	}
	if opts.Logger == nil {
		opts.Logger = defaultLogger()
	}
	return opts
}
