package ams

import "encoding/binary"

// AmsTcpHeaderSize is the on-wire size of AmsTcpHeader: a reserved uint16
// followed by a uint32 length.
const AmsTcpHeaderSize = 6

// AoEHeaderSize is the on-wire size of AoEHeader.
const AoEHeaderSize = 32

// Recognized cmdId values, per the AoE wire protocol.
const (
	CmdReadDeviceInfo        uint16 = 1
	CmdRead                  uint16 = 2
	CmdWrite                 uint16 = 3
	CmdReadState             uint16 = 4
	CmdWriteControl          uint16 = 5
	CmdAddDeviceNotification uint16 = 6
	CmdDelDeviceNotification uint16 = 7
	CmdDeviceNotification    uint16 = 8
	CmdReadWrite             uint16 = 9
)

// isAcceptedReplyCmd reports whether cmdId is one of the opcodes the reader
// loop accepts as a reply to a pending request (spec step 4.6/5).
func isAcceptedReplyCmd(cmdId uint16) bool {
	switch cmdId {
	case CmdReadDeviceInfo, CmdRead, CmdWrite, CmdReadState, CmdWriteControl,
		CmdAddDeviceNotification, CmdDelDeviceNotification, CmdReadWrite:
		return true
	default:
		return false
	}
}

// AmsTcpHeader carries the total length, in bytes, of the AoEHeader plus
// payload that follows it on the wire.
type AmsTcpHeader struct {
	Reserved uint16
	Length   uint32
}

// Encode writes h to buf, which must be at least AmsTcpHeaderSize bytes.
func (h AmsTcpHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Reserved)
	binary.LittleEndian.PutUint32(buf[2:6], h.Length)
}

// DecodeAmsTcpHeader parses an AmsTcpHeader from the front of buf.
func DecodeAmsTcpHeader(buf []byte) AmsTcpHeader {
	return AmsTcpHeader{
		Reserved: binary.LittleEndian.Uint16(buf[0:2]),
		Length:   binary.LittleEndian.Uint32(buf[2:6]),
	}
}

// AoEHeader is the 32-byte application header carried by every AMS/TCP
// frame after the AmsTcpHeader.
type AoEHeader struct {
	TargetNetId NetId
	TargetPort  uint16
	SourceNetId NetId
	SourcePort  uint16
	CmdId       uint16
	StateFlags  uint16
	Length      uint32
	ErrorCode   uint32
	InvokeId    uint32
}

// Encode writes h to buf, which must be at least AoEHeaderSize bytes.
func (h AoEHeader) Encode(buf []byte) {
	copy(buf[0:6], h.TargetNetId[:])
	binary.LittleEndian.PutUint16(buf[6:8], h.TargetPort)
	copy(buf[8:14], h.SourceNetId[:])
	binary.LittleEndian.PutUint16(buf[14:16], h.SourcePort)
	binary.LittleEndian.PutUint16(buf[16:18], h.CmdId)
	binary.LittleEndian.PutUint16(buf[18:20], h.StateFlags)
	binary.LittleEndian.PutUint32(buf[20:24], h.Length)
	binary.LittleEndian.PutUint32(buf[24:28], h.ErrorCode)
	binary.LittleEndian.PutUint32(buf[28:32], h.InvokeId)
}

// DecodeAoEHeader parses an AoEHeader from the front of buf.
func DecodeAoEHeader(buf []byte) AoEHeader {
	var h AoEHeader
	copy(h.TargetNetId[:], buf[0:6])
	h.TargetPort = binary.LittleEndian.Uint16(buf[6:8])
	copy(h.SourceNetId[:], buf[8:14])
	h.SourcePort = binary.LittleEndian.Uint16(buf[14:16])
	h.CmdId = binary.LittleEndian.Uint16(buf[16:18])
	h.StateFlags = binary.LittleEndian.Uint16(buf[18:20])
	h.Length = binary.LittleEndian.Uint32(buf[20:24])
	h.ErrorCode = binary.LittleEndian.Uint32(buf[24:28])
	h.InvokeId = binary.LittleEndian.Uint32(buf[28:32])
	return h
}

// sourceAms reconstructs the AmsAddr the notification or reply originated
// from, used as half of the dispatcher table's VirtualConnection key.
func (h AoEHeader) sourceAms() AmsAddr {
	return AmsAddr{NetId: h.SourceNetId, Port: h.SourcePort}
}
