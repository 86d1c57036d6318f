package ams

import (
	"encoding/binary"
	"sync"
)

// defaultRingCapacity is the dispatcher ring size used when the caller
// does not ask for a specific one; it is large enough to absorb a short
// burst of notifications between worker wakeups.
const defaultRingCapacity = 64 * 1024

// NotificationCallback is invoked once per sample inside a delivered
// device-notification frame. It runs synchronously on the dispatcher's
// worker goroutine; a callback that blocks indefinitely stalls that
// dispatcher's subsequent notifications, which queue in the ring and may
// overflow.
type NotificationCallback func(hNotify uint32, timestamp uint64, payload []byte, user any)

type subscription struct {
	callback NotificationCallback
	user     any
	length   uint32
	hNotify  uint32
}

// NotificationDispatcher owns a worker goroutine and a ring, draining
// device-notification frames the AmsConnection reader goroutine has
// written and invoking the matching subscription's callback for each
// embedded sample. One dispatcher exists per (localPort, remoteAddr) pair;
// it is created lazily on first subscription and destroyed only when the
// owning AmsConnection is destroyed.
type NotificationDispatcher struct {
	localPort  uint16
	remoteAddr AmsAddr
	ring       *RingBuffer
	logger     Logger

	mu            sync.Mutex
	subscriptions map[uint32]*subscription

	notifyCh chan struct{}
	doneCh   chan struct{}
	stopped  chan struct{}
}

func newNotificationDispatcher(localPort uint16, remoteAddr AmsAddr, ringCapacity int, logger Logger) *NotificationDispatcher {
	if ringCapacity <= 0 {
		ringCapacity = defaultRingCapacity
	}
	d := &NotificationDispatcher{
		localPort:     localPort,
		remoteAddr:    remoteAddr,
		ring:          NewRingBuffer(ringCapacity),
		logger:        logger,
		subscriptions: make(map[uint32]*subscription),
		notifyCh:      make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go d.run()
	return d
}

// emplace registers a subscription, overwriting any previous one with the
// same hNotify.
func (d *NotificationDispatcher) emplace(callback NotificationCallback, user any, length uint32, hNotify uint32) {
	d.mu.Lock()
	d.subscriptions[hNotify] = &subscription{callback: callback, user: user, length: length, hNotify: hNotify}
	d.mu.Unlock()
}

// erase removes a subscription. It does not destroy the dispatcher, which
// stays warm for further subscriptions on the same virtual connection.
func (d *NotificationDispatcher) erase(hNotify uint32) {
	d.mu.Lock()
	delete(d.subscriptions, hNotify)
	d.mu.Unlock()
}

func (d *NotificationDispatcher) subscriptionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscriptions)
}

// notify signals the worker that new bytes have landed in the ring. It
// never blocks: a pending signal coalesces any number of notify calls
// into one wakeup, which is correct because the worker always drains the
// whole ring before going back to sleep.
func (d *NotificationDispatcher) notify() {
	select {
	case d.notifyCh <- struct{}{}:
	default:
	}
}

// close signals the worker to exit and waits for it to do so, joining the
// goroutine.
func (d *NotificationDispatcher) close() {
	select {
	case <-d.doneCh:
	default:
		close(d.doneCh)
	}
	<-d.stopped
}

func (d *NotificationDispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case <-d.doneCh:
			return
		case <-d.notifyCh:
			for d.drainOne() {
			}
		}
	}
}

// drainOne parses and delivers exactly one concatenated notification
// frame from the front of the ring, returning false once the ring either
// has nothing left or has less than a full frame pending (which should
// not normally happen, since the producer only signals after writing a
// complete frame).
func (d *NotificationDispatcher) drainOne() bool {
	if d.ring.BytesUsed() < 4 {
		return false
	}
	var lenBuf [4]byte
	peekCopy(d.ring, 0, lenBuf[:])
	bodyLen := int(binary.LittleEndian.Uint32(lenBuf[:]))
	total := 4 + bodyLen

	if bodyLen < 0 || total > d.ring.Capacity() {
		d.logger.Warnf("notification dispatcher: implausible frame length %d, dropping %d buffered bytes", bodyLen, d.ring.BytesUsed())
		d.ring.Read(d.ring.BytesUsed())
		return false
	}
	if d.ring.BytesUsed() < total {
		return false
	}

	buf := make([]byte, total)
	peekCopy(d.ring, 0, buf)
	d.ring.Read(total)

	d.deliver(buf[4:])
	return true
}

// deliver parses one notification frame body on the wire: a leading
// length field, then the stamps/samples structure, and invokes the
// matching subscription's callback for each sample, in the exact order
// the samples appear. A panic inside a callback is recovered and logged,
// per the "callbacks do not kill the dispatcher worker" discipline.
func (d *NotificationDispatcher) deliver(body []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warnf("notification dispatcher: callback panic recovered: %v", r)
		}
	}()

	if len(body) < 8 {
		d.logger.Warnf("notification dispatcher: malformed frame, too short for length and stamp count")
		return
	}
	// body[0:4] is the payload's own length field, redundant with the AoE
	// body length already known from the AmsTcpHeader; skip it.
	stamps := binary.LittleEndian.Uint32(body[4:8])
	pos := 8

	for s := uint32(0); s < stamps; s++ {
		if pos+12 > len(body) {
			d.logger.Warnf("notification dispatcher: malformed frame, truncated stamp header")
			return
		}
		timestamp := binary.LittleEndian.Uint64(body[pos : pos+8])
		samples := binary.LittleEndian.Uint32(body[pos+8 : pos+12])
		pos += 12

		for i := uint32(0); i < samples; i++ {
			if pos+8 > len(body) {
				d.logger.Warnf("notification dispatcher: malformed frame, truncated sample header")
				return
			}
			hNotify := binary.LittleEndian.Uint32(body[pos : pos+4])
			size := binary.LittleEndian.Uint32(body[pos+4 : pos+8])
			pos += 8

			if pos+int(size) > len(body) {
				d.logger.Warnf("notification dispatcher: malformed frame, truncated payload")
				return
			}
			payload := body[pos : pos+int(size)]
			pos += int(size)

			d.dispatchSample(hNotify, timestamp, payload)
		}
	}
}

func (d *NotificationDispatcher) dispatchSample(hNotify uint32, timestamp uint64, payload []byte) {
	d.mu.Lock()
	sub, ok := d.subscriptions[hNotify]
	d.mu.Unlock()
	if !ok {
		d.logger.Warnf("notification dispatcher: no subscription for hNotify 0x%x", hNotify)
		return
	}
	sub.callback(hNotify, timestamp, payload, sub.user)
}

// peekCopy copies len(dst) bytes starting at logical offset off from the
// ring's current read cursor into dst, without advancing the cursor.
func peekCopy(r *RingBuffer, off int, dst []byte) {
	need := len(dst)
	copied := 0
	for copied < need {
		chunk := r.ChunkAt(off + copied)
		if len(chunk) == 0 {
			return
		}
		c := copy(dst[copied:], chunk)
		copied += c
	}
}
