package ams

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Router owns every AmsConnection this process has opened, one per
// destination IP, created lazily on first use, plus the free list of
// local AMS ports shared across all of them. It is the entry point
// callers construct: NewRouter, then Connection to reach a device.
type Router struct {
	opts Options

	mu          sync.RWMutex
	connections map[string]*AmsConnection
	group       singleflight.Group

	portMu    sync.Mutex
	freePorts []uint16

	closed atomic.Bool
}

// NewRouter builds a Router from opts, filling in defaults for any
// zero-valued field, and seeds the local port free list from
// opts.PortBase..opts.PortEnd inclusive.
func NewRouter(opts Options) *Router {
	opts = opts.WithDefaults()
	r := &Router{
		opts:        opts,
		connections: make(map[string]*AmsConnection),
	}
	for p := opts.PortBase; ; p++ {
		r.freePorts = append(r.freePorts, p)
		if p == opts.PortEnd {
			break
		}
	}
	return r
}

// Connection returns the AmsConnection for destIp, dialing and starting
// its reader goroutine on first use. Concurrent first callers for the
// same destIp collapse into a single dial via singleflight, and all of
// them receive the same *AmsConnection.
func (r *Router) Connection(destIp string) (*AmsConnection, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	r.mu.RLock()
	c, ok := r.connections[destIp]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	result, err, _ := r.group.Do(destIp, func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.connections[destIp]; ok {
			return c, nil
		}
		c, err := newAmsConnection(destIp, r.opts)
		if err != nil {
			return nil, err
		}
		r.connections[destIp] = c
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*AmsConnection), nil
}

// AllocPort leases an unused local AMS port from the router's configured
// range, for a caller that wants a dedicated port for its own requests and
// subscriptions. It returns a BusyPortError if the range is exhausted.
func (r *Router) AllocPort() (uint16, error) {
	r.portMu.Lock()
	defer r.portMu.Unlock()
	if len(r.freePorts) == 0 {
		return 0, NewError(BusyPortError, nil, "no free local ports")
	}
	port := r.freePorts[len(r.freePorts)-1]
	r.freePorts = r.freePorts[:len(r.freePorts)-1]
	return port, nil
}

// FreePort returns a port leased from AllocPort back to the free list. It
// does not touch any responseSlot state; a caller must have already
// finished with every outstanding request on that port.
func (r *Router) FreePort(port uint16) {
	r.portMu.Lock()
	r.freePorts = append(r.freePorts, port)
	r.portMu.Unlock()
}

// Close tears down every AmsConnection the router has opened, joining all
// of their reader and dispatcher-worker goroutines before returning. It is
// idempotent; a second call is a no-op.
func (r *Router) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.Lock()
	conns := make([]*AmsConnection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	r.connections = make(map[string]*AmsConnection)
	r.mu.Unlock()

	var g errgroup.Group
	for _, c := range conns {
		c := c
		g.Go(c.Close)
	}
	return g.Wait()
}
