package ams

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// dispatcherTable is the per-AmsConnection map of VirtualConnection to
// NotificationDispatcher. The reference implementation this is grounded
// on (AmsConnection::DispatcherList) does an unlocked Get before a locked
// Add as a fast path; spec.md flags that as a data race unless the map is
// concurrent, and recommends a single locked get-or-insert instead. We go
// one step further and collapse concurrent first-subscribers to the same
// virtual connection into a single dispatcher construction with
// singleflight, rather than just serializing the insert.
type dispatcherTable struct {
	mu    sync.RWMutex
	byKey map[VirtualConnection]*NotificationDispatcher
	group singleflight.Group

	ringCapacity int
	logger       Logger
}

func newDispatcherTable(ringCapacity int, logger Logger) *dispatcherTable {
	return &dispatcherTable{
		byKey:        make(map[VirtualConnection]*NotificationDispatcher),
		ringCapacity: ringCapacity,
		logger:       logger,
	}
}

// get looks up an existing dispatcher without creating one.
func (t *dispatcherTable) get(key VirtualConnection) *NotificationDispatcher {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byKey[key]
}

// getOrCreate returns the dispatcher for key, creating it on first use.
// Concurrent callers racing to create the dispatcher for the same key
// collapse into a single construction via singleflight; every caller
// still gets the same *NotificationDispatcher back.
func (t *dispatcherTable) getOrCreate(key VirtualConnection) *NotificationDispatcher {
	if d := t.get(key); d != nil {
		return d
	}

	result, _, _ := t.group.Do(key.String(), func() (any, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if d, ok := t.byKey[key]; ok {
			return d, nil
		}
		d := newNotificationDispatcher(key.LocalPort, key.RemoteAddr, t.ringCapacity, t.logger)
		t.byKey[key] = d
		return d, nil
	})
	return result.(*NotificationDispatcher)
}

// all returns every dispatcher currently in the table, used during
// AmsConnection teardown to fan out a join over all of their worker
// goroutines.
func (t *dispatcherTable) all() []*NotificationDispatcher {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]*NotificationDispatcher, 0, len(t.byKey))
	for _, d := range t.byKey {
		all = append(all, d)
	}
	return all
}
