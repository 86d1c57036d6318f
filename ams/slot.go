package ams

import (
	"sync/atomic"
	"time"
)

// responseSlot is the per-local-port rendezvous object for a single
// outstanding request. invokeId == 0 iff the slot is free; reservation is
// a compare-and-swap so exactly one caller can hold a slot at a time.
// Wait/notify are rendered with a channel rather than a mutex+condvar,
// following this codebase's channel-based rendezvous idiom rather than
// sync.Cond.
type responseSlot struct {
	invokeId atomic.Uint32
	frame    *Frame
	notifyCh chan struct{}
	err      atomic.Pointer[AdsError]
}

func newResponseSlot() *responseSlot {
	return &responseSlot{
		frame:    NewFrame(defaultFrameCapacity),
		notifyCh: make(chan struct{}, 1),
	}
}

// reserve atomically claims the slot for invokeId, returning false if it
// was already reserved.
func (s *responseSlot) reserve(invokeId uint32) bool {
	return s.invokeId.CompareAndSwap(0, invokeId)
}

// release frees the slot unconditionally, resetting its frame for reuse.
// Callers use this after a timeout, or after a failed write, to avoid
// stranding the port.
func (s *responseSlot) release() {
	s.frame.Reset()
	s.invokeId.Store(0)
}

// notify delivers a reply: it frees the slot and wakes exactly one waiter.
func (s *responseSlot) notify() {
	s.invokeId.Store(0)
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// notifyForceClosed wakes a waiter the way notify does, but additionally
// records ErrTransport so the waiter's subsequent wait/takeError call can
// tell a forced shutdown release apart from a real reply. Used by
// slotTable.releaseAll on AmsConnection.Close.
func (s *responseSlot) notifyForceClosed() {
	s.err.Store(ErrTransport)
	s.notify()
}

// takeError returns and clears any forced-close error recorded by
// notifyForceClosed. A caller calls this right after wait returns true to
// distinguish a genuine reply from a shutdown-induced wakeup.
func (s *responseSlot) takeError() error {
	err := s.err.Swap(nil)
	if err == nil {
		return nil
	}
	return err
}

// wait blocks until notify is called or timeout elapses. It returns true
// if notified, false on timeout — in which case the caller must still call
// release, since the invariant "at most one outstanding reservation" is
// only restored by an explicit release or a subsequent notify.
func (s *responseSlot) wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.notifyCh:
		return true
	case <-timer.C:
		return false
	}
}

// slotTable is the fixed contiguous array of responseSlots, indexed by
// localPort - portBase, sized for the Router's whole port range.
type slotTable struct {
	portBase uint16
	slots    []*responseSlot
}

func newSlotTable(portBase, portEnd uint16) *slotTable {
	n := int(portEnd-portBase) + 1
	t := &slotTable{portBase: portBase, slots: make([]*responseSlot, n)}
	for i := range t.slots {
		t.slots[i] = newResponseSlot()
	}
	return t
}

func (t *slotTable) at(port uint16) *responseSlot {
	idx := int(port - t.portBase)
	if idx < 0 || idx >= len(t.slots) {
		return nil
	}
	return t.slots[idx]
}

// releaseAll force-notifies every reserved slot, used on connection
// shutdown so callers blocked in wait observe a wakeup instead of riding
// out their full timeout (spec's recommended release-and-wake).
func (t *slotTable) releaseAll() {
	for _, slot := range t.slots {
		if slot.invokeId.Load() != 0 {
			slot.notifyForceClosed()
		}
	}
}
