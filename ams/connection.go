package ams

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// AmsConnection is one TCP socket to one destination IP, shared by every
// caller that talks to that device: a dedicated reader goroutine, a fixed
// slot table for pending requests, and a table of notification
// dispatchers. It is created by a Router on first use of a destination IP
// and destroyed when the Router drops it.
type AmsConnection struct {
	destIp string
	opts   Options
	logger Logger

	socket *Socket

	writeMu sync.Mutex

	invokeCounter atomic.Uint32

	slots       *slotTable
	dispatchers *dispatcherTable

	readerStopped chan struct{}
	closeOnce     sync.Once
	closed        atomic.Bool
}

// isClosed reports whether Close has been called, used by
// NotificationHandle to skip a deregistration round trip against a
// connection that is already torn down.
func (c *AmsConnection) isClosed() bool {
	return c.closed.Load()
}

// newAmsConnection dials destIp on opts.AdsPort and starts the reader
// goroutine. It is unexported: callers obtain an AmsConnection through a
// Router, which owns the table of connections keyed by destination IP.
func newAmsConnection(destIp string, opts Options) (*AmsConnection, error) {
	socket, err := DialSocket(destIp, opts.AdsPort, opts.DialTimeout)
	if err != nil {
		return nil, err
	}

	c := &AmsConnection{
		destIp:        destIp,
		opts:          opts,
		logger:        opts.Logger,
		socket:        socket,
		slots:         newSlotTable(opts.PortBase, opts.PortEnd),
		dispatchers:   newDispatcherTable(opts.RingCapacity, opts.Logger),
		readerStopped: make(chan struct{}),
	}
	go c.recv()
	return c, nil
}

// getInvokeId returns a monotonically increasing, always-nonzero invokeId,
// unique for the lifetime of this connection.
func (c *AmsConnection) getInvokeId() uint32 {
	for {
		id := c.invokeCounter.Add(1)
		if id != 0 {
			return id
		}
	}
}

// Write prepends an AoEHeader and an AmsTcpHeader onto frame, reserves the
// ResponseSlot for srcAddr.Port, and sends the whole frame to the device
// in one logical write. The caller waits on the returned slot for the
// reply. It returns ErrBusyPort if srcAddr.Port already has an
// outstanding request, and a TransportError if the send fails (in which
// case the slot is released before returning).
func (c *AmsConnection) Write(frame *Frame, destAddr, srcAddr AmsAddr, cmdId uint16) (*responseSlot, error) {
	bodyLen := uint32(frame.Len())
	invokeId := c.getInvokeId()

	aoeHeader := AoEHeader{
		TargetNetId: destAddr.NetId,
		TargetPort:  destAddr.Port,
		SourceNetId: srcAddr.NetId,
		SourcePort:  srcAddr.Port,
		CmdId:       cmdId,
		Length:      bodyLen,
		InvokeId:    invokeId,
	}
	var aoeBuf [AoEHeaderSize]byte
	aoeHeader.Encode(aoeBuf[:])
	if err := frame.Prepend(aoeBuf[:]); err != nil {
		return nil, NewError(MalformedFrameError, err, "prepend AoEHeader")
	}

	tcpHeader := AmsTcpHeader{Length: uint32(frame.Len())}
	var tcpBuf [AmsTcpHeaderSize]byte
	tcpHeader.Encode(tcpBuf[:])
	if err := frame.Prepend(tcpBuf[:]); err != nil {
		return nil, NewError(MalformedFrameError, err, "prepend AmsTcpHeader")
	}

	slot := c.slots.at(srcAddr.Port)
	if slot == nil {
		return nil, NewError(BusyPortError, nil, "local port out of range")
	}
	if !slot.reserve(invokeId) {
		return nil, ErrBusyPort
	}

	c.writeMu.Lock()
	err := c.socket.Write(frame.Bytes())
	c.writeMu.Unlock()
	if err != nil {
		slot.release()
		return nil, NewError(TransportError, err, "write")
	}
	return slot, nil
}

// CreateNotifyMapping looks up or creates the NotificationDispatcher for
// (localPort, remoteAddr), inserts the subscription, and returns the
// identifier a NotificationHandle needs to deregister it later.
func (c *AmsConnection) CreateNotifyMapping(
	localPort uint16,
	remoteAddr AmsAddr,
	callback NotificationCallback,
	user any,
	length uint32,
	hNotify uint32,
) NotificationId {
	dispatcher := c.dispatchers.getOrCreate(VirtualConnection{LocalPort: localPort, RemoteAddr: remoteAddr})
	dispatcher.emplace(callback, user, length, hNotify)
	return NotificationId{HNotify: hNotify, dispatcher: dispatcher}
}

// DeleteNotification builds and sends a DEL_DEVICE_NOTIFICATION frame and
// waits up to timeout for the device's reply.
func (c *AmsConnection) DeleteNotification(remoteAddr, localAddr AmsAddr, hNotify uint32, timeout time.Duration) error {
	frame := NewFrame(AmsTcpHeaderSize + AoEHeaderSize + 4)
	if err := frame.PrependUint32(hNotify); err != nil {
		return NewError(MalformedFrameError, err)
	}

	slot, err := c.Write(frame, remoteAddr, localAddr, CmdDelDeviceNotification)
	if err != nil {
		return err
	}
	if !slot.wait(timeout) {
		slot.release()
		return ErrTimedOut
	}
	return slot.takeError()
}

// Close shuts the socket down, joins the reader goroutine, releases any
// callers still blocked in a slot wait, and joins every dispatcher's
// worker goroutine. It is idempotent.
func (c *AmsConnection) Close() error {
	var shutdownErr error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		shutdownErr = c.socket.Shutdown()
		<-c.readerStopped

		c.slots.releaseAll()

		var g errgroup.Group
		for _, d := range c.dispatchers.all() {
			d := d
			g.Go(func() error {
				d.close()
				return nil
			})
		}
		_ = g.Wait()
	})
	return shutdownErr
}

// recv is the reader goroutine: it reads frames off the socket forever,
// routing each one to a notification dispatcher or a pending reply slot,
// until a socket error (including the EOF induced by Close's shutdown)
// ends the loop. It never propagates a protocol error to a caller; it
// logs and drains so one bad frame does not poison the stream.
func (c *AmsConnection) recv() {
	defer close(c.readerStopped)

	var tcpBuf [AmsTcpHeaderSize]byte
	var aoeBuf [AoEHeaderSize]byte

	for {
		if err := c.socket.Read(tcpBuf[:]); err != nil {
			c.logger.Infof("ams connection %s: reader exiting: %v", c.destIp, err)
			return
		}
		tcpHeader := DecodeAmsTcpHeader(tcpBuf[:])

		if tcpHeader.Length < AoEHeaderSize {
			c.logger.Warnf("ams connection %s: frame too short to be AoE (%d bytes)", c.destIp, tcpHeader.Length)
			if err := c.drainJunk(int(tcpHeader.Length)); err != nil {
				return
			}
			continue
		}

		if err := c.socket.Read(aoeBuf[:]); err != nil {
			c.logger.Infof("ams connection %s: reader exiting: %v", c.destIp, err)
			return
		}
		aoeHeader := DecodeAoEHeader(aoeBuf[:])
		bodyLen := int(tcpHeader.Length) - AoEHeaderSize

		var err error
		if aoeHeader.CmdId == CmdDeviceNotification {
			err = c.receiveNotification(aoeHeader, bodyLen)
		} else {
			err = c.receiveReply(aoeHeader, bodyLen)
		}
		if err != nil {
			c.logger.Infof("ams connection %s: reader exiting: %v", c.destIp, err)
			return
		}
	}
}

func (c *AmsConnection) receiveNotification(header AoEHeader, bodyLen int) error {
	key := VirtualConnection{LocalPort: header.TargetPort, RemoteAddr: header.sourceAms()}
	dispatcher := c.dispatchers.get(key)
	if dispatcher == nil {
		c.logger.Warnf("ams connection %s: no dispatcher for notification on port %d from %s", c.destIp, header.TargetPort, header.sourceAms())
		return c.drainJunk(bodyLen)
	}

	// Each frame the dispatcher worker drains out of the ring is prefixed
	// with its own 4-byte length, so the worker can reframe one notification
	// body at a time from an otherwise-unstructured byte stream.
	total := 4 + bodyLen
	if dispatcher.ring.BytesFree() < total {
		c.logger.Warnf("ams connection %s: port %d notification ring full, dropping %d bytes", c.destIp, header.TargetPort, bodyLen)
		return c.drainJunk(bodyLen)
	}

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(bodyLen))
	prefix := lenPrefix[:]
	for len(prefix) > 0 {
		chunk := dispatcher.ring.WriteChunk()
		n := copy(chunk, prefix)
		dispatcher.ring.Write(n)
		prefix = prefix[n:]
	}

	remaining := bodyLen
	for remaining > 0 {
		chunk := dispatcher.ring.WriteChunk()
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		if err := c.socket.Read(chunk); err != nil {
			return err
		}
		dispatcher.ring.Write(len(chunk))
		remaining -= len(chunk)
	}
	dispatcher.notify()
	return nil
}

func (c *AmsConnection) receiveReply(header AoEHeader, bodyLen int) error {
	slot := c.slots.at(header.TargetPort)
	if slot == nil || slot.invokeId.Load() != header.InvokeId {
		c.logger.Warnf("ams connection %s: invokeId mismatch on port %d (got 0x%x)", c.destIp, header.TargetPort, header.InvokeId)
		return c.drainJunk(bodyLen)
	}

	if err := c.receiveFrame(slot.frame, bodyLen); err != nil {
		return err
	}
	if !isAcceptedReplyCmd(header.CmdId) {
		c.logger.Warnf("ams connection %s: unknown AMS command id %d", c.destIp, header.CmdId)
		slot.frame.Clear()
	}
	slot.notify()
	return nil
}

// receiveFrame reads bodyLen bytes off the socket into frame, resetting it
// first. If bodyLen exceeds the frame's capacity the bytes are drained and
// discarded and the frame is left empty.
func (c *AmsConnection) receiveFrame(frame *Frame, bodyLen int) error {
	frame.Reset()
	if bodyLen > frame.Capacity() {
		c.logger.Warnf("ams connection %s: frame too long: %d > capacity %d", c.destIp, bodyLen, frame.Capacity())
		return c.drainJunk(bodyLen)
	}
	if err := c.socket.Read(frame.RawData()[:bodyLen]); err != nil {
		return err
	}
	frame.Limit(bodyLen)
	return nil
}

// drainJunk reads and discards n bytes from the socket, used to skip a
// frame body the reader has decided not to keep.
func (c *AmsConnection) drainJunk(n int) error {
	var buf [1024]byte
	for n > 0 {
		chunkSize := len(buf)
		if chunkSize > n {
			chunkSize = n
		}
		if err := c.socket.Read(buf[:chunkSize]); err != nil {
			return err
		}
		n -= chunkSize
	}
	return nil
}
