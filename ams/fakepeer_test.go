// FakePeer is a minimal, real-socket fake ADS device for exercising the
// ams package's reader loop and dispatcher end to end. Grounded on
// fakeamps's net.Listener-backed fake-server pattern (see
// tools/fakeamps/main.go in the retrieval corpus), scaled down from a
// full stateful AMPS server to the raw AoE/AmsTcp wire format ams speaks.
package ams

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"
)

// FakePeer is a single-connection ADS device double: a real TCP listener
// that accepts one connection and lets a test script read requests off it
// and write back replies or unsolicited device notifications.
type FakePeer struct {
	t      testing.TB
	ln     net.Listener
	connCh chan net.Conn
	conn   net.Conn
}

// NewFakePeer starts listening on an ephemeral 127.0.0.1 port and accepts
// its first connection in the background. Call Host/Port to point an
// AmsConnection at it.
func NewFakePeer(t testing.TB) *FakePeer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("adstest: listen: %v", err)
	}
	p := &FakePeer{t: t, ln: ln, connCh: make(chan net.Conn, 1)}
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			p.connCh <- conn
		}
	}()
	t.Cleanup(p.close)
	return p
}

func (p *FakePeer) close() {
	p.ln.Close()
	if p.conn != nil {
		p.conn.Close()
	}
}

// Host returns the loopback address the peer is listening on.
func (p *FakePeer) Host() string {
	return p.ln.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the ephemeral TCP port the peer is listening on.
func (p *FakePeer) Port() uint16 {
	return uint16(p.ln.Addr().(*net.TCPAddr).Port)
}

// acceptConn blocks until the client side has dialed in and memoizes the
// resulting connection for every subsequent call.
func (p *FakePeer) acceptConn() net.Conn {
	if p.conn != nil {
		return p.conn
	}
	select {
	case p.conn = <-p.connCh:
	case <-time.After(5 * time.Second):
		p.t.Fatalf("adstest: no connection accepted within 5s")
	}
	return p.conn
}

// ReadRequest blocks for one AmsTcpHeader+AoEHeader+body frame from the
// client and returns the decoded AoE header and the raw body bytes.
func (p *FakePeer) ReadRequest() (AoEHeader, []byte) {
	conn := p.acceptConn()

	var tcpBuf [AmsTcpHeaderSize]byte
	if _, err := io.ReadFull(conn, tcpBuf[:]); err != nil {
		p.t.Fatalf("adstest: read AmsTcpHeader: %v", err)
	}
	tcpHeader := DecodeAmsTcpHeader(tcpBuf[:])

	var aoeBuf [AoEHeaderSize]byte
	if _, err := io.ReadFull(conn, aoeBuf[:]); err != nil {
		p.t.Fatalf("adstest: read AoEHeader: %v", err)
	}
	aoeHeader := DecodeAoEHeader(aoeBuf[:])

	bodyLen := int(tcpHeader.Length) - AoEHeaderSize
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(conn, body); err != nil {
			p.t.Fatalf("adstest: read body: %v", err)
		}
	}
	return aoeHeader, body
}

// SendReply writes header (typically a copy of the request's header with
// TargetPort/SourcePort/NetId swapped and an InvokeId carried over) plus
// body back to the client as one AoE reply frame.
func (p *FakePeer) SendReply(header AoEHeader, body []byte) {
	p.send(header, body)
}

// SendNotification writes a DEVICE_NOTIFICATION frame carrying a
// pre-encoded device-notification payload (stamps/samples already laid
// out by the caller) addressed to targetPort, as if sent by sourceAddr.
func (p *FakePeer) SendNotification(targetPort uint16, sourceAddr AmsAddr, payload []byte) {
	p.send(AoEHeader{
		TargetPort:  targetPort,
		SourceNetId: sourceAddr.NetId,
		SourcePort:  sourceAddr.Port,
		CmdId:       CmdDeviceNotification,
	}, payload)
}

func (p *FakePeer) send(header AoEHeader, body []byte) {
	conn := p.acceptConn()
	header.Length = uint32(len(body))

	var aoeBuf [AoEHeaderSize]byte
	header.Encode(aoeBuf[:])

	tcpHeader := AmsTcpHeader{Length: uint32(AoEHeaderSize + len(body))}
	var tcpBuf [AmsTcpHeaderSize]byte
	tcpHeader.Encode(tcpBuf[:])

	frame := make([]byte, 0, len(tcpBuf)+len(aoeBuf)+len(body))
	frame = append(frame, tcpBuf[:]...)
	frame = append(frame, aoeBuf[:]...)
	frame = append(frame, body...)
	if _, err := conn.Write(frame); err != nil {
		p.t.Fatalf("adstest: write: %v", err)
	}
}

// EncodeNotificationSample builds the stamps/samples payload body for one
// device notification carrying a single sample, matching the wire layout
// NotificationDispatcher.deliver parses: a leading length field, stamp
// count, timestamp, sample count, then (hNotify, size, payload) per
// sample.
func EncodeNotificationSample(hNotify uint32, timestamp uint64, payload []byte) []byte {
	rest := 4 + 8 + 4 + 4 + 4 + len(payload) // stamps..payload, not counting length itself
	buf := make([]byte, 4+rest)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rest)) // length
	binary.LittleEndian.PutUint32(buf[4:8], 1)            // stamps
	binary.LittleEndian.PutUint64(buf[8:16], timestamp)
	binary.LittleEndian.PutUint32(buf[16:20], 1) // samples
	binary.LittleEndian.PutUint32(buf[20:24], hNotify)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(payload)))
	copy(buf[28:], payload)
	return buf
}
