package ams

import "fmt"

// NetId is the 6-byte AMS network identifier. Equality is value-based
// because it is a plain fixed-size array.
type NetId [6]byte

func (id NetId) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d.%d", id[0], id[1], id[2], id[3], id[4], id[5])
}

// AmsAddr identifies a logical endpoint within an AMS fabric: a 6-byte
// netId plus a 2-byte port. Equality and hashing are value-based, so
// AmsAddr is safe to use as a map key component.
type AmsAddr struct {
	NetId NetId
	Port  uint16
}

func (addr AmsAddr) String() string {
	return fmt.Sprintf("%s:%d", addr.NetId, addr.Port)
}

// VirtualConnection identifies one logical subscription channel: the pair
// of the local port a notification is delivered to and the remote AMS
// address it originates from. It is the dispatcher table's key.
type VirtualConnection struct {
	LocalPort  uint16
	RemoteAddr AmsAddr
}

func (vc VirtualConnection) String() string {
	return fmt.Sprintf("%d<-%s", vc.LocalPort, vc.RemoteAddr)
}

// NotificationId is returned by AmsConnection.CreateNotifyMapping and is
// the pair a caller needs to later deregister a subscription: the handle
// number the device assigned plus the dispatcher it was registered on.
type NotificationId struct {
	HNotify    uint32
	dispatcher *NotificationDispatcher
}
