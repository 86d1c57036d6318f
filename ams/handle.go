package ams

import (
	"sync"
	"time"
)

// NotificationHandle is the caller-held token for one AddNotification
// subscription. Closing it removes the callback from the dispatcher and
// sends DEL_DEVICE_NOTIFICATION to the device. Grounded on AdsNotification's
// RAII-plus-weak-reference discipline: the original holds a weak_ptr to the
// owning AmsConnection so a handle outliving its connection's teardown does
// not resurrect it. Go has no native weak pointer, so the same effect is
// rendered with an explicit closed flag on AmsConnection plus a
// once-guarded Close here.
type NotificationHandle struct {
	conn       *AmsConnection
	id         NotificationId
	remoteAddr AmsAddr
	localAddr  AmsAddr
	timeout    time.Duration

	closeOnce sync.Once
}

// NewNotificationHandle wraps a NotificationId returned by
// AmsConnection.CreateNotifyMapping into a closeable handle. remoteAddr and
// localAddr identify the endpoints the original ADD_DEVICE_NOTIFICATION
// request used, which DEL_DEVICE_NOTIFICATION must repeat on Close.
func NewNotificationHandle(conn *AmsConnection, id NotificationId, remoteAddr, localAddr AmsAddr, timeout time.Duration) *NotificationHandle {
	return &NotificationHandle{conn: conn, id: id, remoteAddr: remoteAddr, localAddr: localAddr, timeout: timeout}
}

// Close deregisters the subscription, sending at most one
// DEL_DEVICE_NOTIFICATION regardless of how many times Close is called. A
// deregistration failure is logged on the owning connection rather than
// returned: the subscription is already gone from the dispatcher's table
// either way, so there is nothing left for a caller to react to. Closing a
// handle whose connection already tore down is a pure local no-op.
func (h *NotificationHandle) Close() {
	h.closeOnce.Do(func() {
		h.id.dispatcher.erase(h.id.HNotify)
		if h.conn.isClosed() {
			return
		}
		if err := h.conn.DeleteNotification(h.remoteAddr, h.localAddr, h.id.HNotify, h.timeout); err != nil {
			h.conn.logger.Warnf("notification handle: deregister hNotify 0x%x failed: %v", h.id.HNotify, err)
		}
	})
}
