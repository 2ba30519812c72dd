package message

// StreamBody is the body type used by length-prefixed byte-stream
// transports (TCP, Unix stream): an opaque byte sequence with no
// attached file descriptors.
type StreamBody struct {
	Data []byte
}

// NewStreamBody wraps data in a StreamBody. The slice is taken by
// reference, not copied.
func NewStreamBody(data []byte) StreamBody {
	return StreamBody{Data: data}
}

// EmptyStreamBody returns a zero-length body.
func EmptyStreamBody() StreamBody {
	return StreamBody{}
}

// ErrorStreamBody builds a body carrying a UTF-8 error message, for use
// with an error Response header.
func ErrorStreamBody(message string) StreamBody {
	return StreamBody{Data: []byte(message)}
}

// Bytes returns the body's byte content.
func (b StreamBody) Bytes() []byte { return b.Data }

// Len returns the number of bytes in the body.
func (b StreamBody) Len() int { return len(b.Data) }

// AsError returns the body's content interpreted as a UTF-8 error
// message, as found on an error Response.
func (b StreamBody) AsError() string { return string(b.Data) }
