// Package transport implements the two concrete message transports used
// by the peer engine: a length-prefixed stream transport (TCP or Unix
// stream) and a datagram transport (Unix seqpacket) with SCM_RIGHTS file
// descriptor passing.
//
// Both transports present the same split-into-halves contract so the
// peer engine can drive either one without caring which is underneath.
package transport

import "peerrpc/message"

// Info describes what the transport can tell the application about the
// remote peer. Only the Unix seqpacket transport populates credentials;
// TCP and Unix stream transports report HasCredentials == false.
type Info struct {
	HasCredentials bool
	UID            uint32
	GID            uint32
	// PID is the remote process ID, or -1 if the kernel did not report one.
	PID int32
}

// ReadHalf reads complete messages from a transport.
type ReadHalf[B message.Body] interface {
	// ReadMessage reads one complete message. Implementations report
	// fatal errors by wrapping them with rpcerr.NewFatal; callers
	// (the peer engine's read loop) use rpcerr.IsFatal to decide
	// whether to keep reading after an error.
	ReadMessage() (message.Message[B], error)
}

// WriteHalf writes complete messages to a transport.
type WriteHalf[B message.Body] interface {
	// WriteMessage writes one complete message. A non-fatal error
	// (PayloadTooLarge) only affects this call; a fatal error means
	// the connection must be torn down.
	WriteMessage(header message.Header, body B) error
}

// Transport is a bidirectional message transport that can be split into
// an independent read half and write half.
type Transport[B message.Body] interface {
	// Split divides the transport into a read half and write half
	// that may be driven concurrently by separate goroutines.
	Split() (ReadHalf[B], WriteHalf[B])

	// Info reports what is known about the remote peer.
	Info() (Info, error)
}
