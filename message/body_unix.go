package message

import "os"

// UnixBody is the body type used by the Unix seqpacket datagram
// transport: an opaque byte sequence plus an ordered list of owned file
// descriptors.
//
// Ownership of an inbound descriptor transfers to the UnixBody the
// moment the kernel hands it back from recvmsg; whoever holds the
// Message owns the descriptors and is responsible for closing them
// (Close does this for every descriptor still present).
//
// Outbound descriptors are borrowed for the write call: the transport
// never closes descriptors found in a body being sent, the caller keeps
// ownership.
type UnixBody struct {
	Data []byte
	FDs  []*os.File
}

// NewUnixBody wraps data and a list of owned descriptors in a UnixBody.
func NewUnixBody(data []byte, fds []*os.File) UnixBody {
	return UnixBody{Data: data, FDs: fds}
}

// EmptyUnixBody returns a body with no data and no descriptors.
func EmptyUnixBody() UnixBody {
	return UnixBody{}
}

// ErrorUnixBody builds a body carrying a UTF-8 error message and no
// descriptors, for use with an error Response header.
func ErrorUnixBody(message string) UnixBody {
	return UnixBody{Data: []byte(message)}
}

// Bytes returns the body's byte content.
func (b UnixBody) Bytes() []byte { return b.Data }

// Len returns the number of bytes in the body (not counting descriptors).
func (b UnixBody) Len() int { return len(b.Data) }

// AsError returns the body's content interpreted as a UTF-8 error
// message, as found on an error Response.
func (b UnixBody) AsError() string { return string(b.Data) }

// Close closes every file descriptor still owned by this body. Safe to
// call on a body with no descriptors or one that was already closed
// (each *os.File is closed at most once; errors from an already-closed
// file are ignored).
func (b UnixBody) Close() {
	for _, fd := range b.FDs {
		if fd != nil {
			_ = fd.Close()
		}
	}
}
