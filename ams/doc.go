// Package ams implements the core of an ADS/AMS client runtime: a
// multiplexer that shares one long-lived TCP connection to a remote ADS
// device among many in-flight request/response exchanges and dispatches
// asynchronous device notifications to user callbacks.
//
// The primary lifecycle is:
//   - construct a Router with NewRouter
//   - call Router.Connection(destIp) to obtain (or lazily create) the
//     AmsConnection for a destination
//   - call AmsConnection.Write to issue a request and block on the
//     returned slot, or AmsConnection.CreateNotifyMapping to subscribe
//     to device notifications
//   - call Router.Close when finished, which tears down every owned
//     AmsConnection and joins every reader and dispatcher goroutine
//
// This package does not implement the symbolic read/write-by-name API,
// TLS, reconnection, or persistence; those are out of scope by design.
// Errors are reported as *AdsError values carrying one of the ErrorKind
// sentinels in errors.go.
package ams
