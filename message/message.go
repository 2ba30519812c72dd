// Package message defines the wire-independent message, header, and body
// types exchanged between two RPC peers.
//
// A Message is the unit of exchange on a peer connection: a fixed header
// plus an opaque body. The core never interprets body bytes; serialization
// formats (JSON, CBOR, ...) live entirely outside this module.
package message

import "fmt"

// HeaderLen is the encoded length of a message header, excluding any
// transport-specific frame-length prefix.
const HeaderLen = 12

// MaxPayloadLen is the largest body length representable by the wire
// format: a stream frame length is a 32-bit count of header plus body
// bytes, and the header takes 12 of them.
const MaxPayloadLen = ^uint32(0) - HeaderLen

// ErrorServiceID is the well-known service ID used on a Response to
// indicate that the body carries a UTF-8 error message instead of a
// normal reply.
const ErrorServiceID int32 = -1

// Type identifies the kind of a message.
type Type uint32

const (
	// Request initiates a request. request_id must be unused by any
	// other currently-open request on this peer.
	Request Type = 0

	// Response terminates a request, matched by request_id.
	Response Type = 1

	// RequesterUpdate is an in-flight update sent by the peer that
	// initiated the request.
	RequesterUpdate Type = 2

	// ResponderUpdate is an in-flight update sent by the peer that
	// received the request.
	ResponderUpdate Type = 3

	// Stream is a one-shot message with no associated request.
	// request_id is unused (always 0) for this type.
	Stream Type = 4
)

// String implements fmt.Stringer for diagnostic output.
func (t Type) String() string {
	switch t {
	case Request:
		return "Request"
	case Response:
		return "Response"
	case RequesterUpdate:
		return "RequesterUpdate"
	case ResponderUpdate:
		return "ResponderUpdate"
	case Stream:
		return "Stream"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// TypeFromU32 converts a raw wire value into a Type, or reports that the
// value is out of range.
func TypeFromU32(value uint32) (Type, bool) {
	switch Type(value) {
	case Request, Response, RequesterUpdate, ResponderUpdate, Stream:
		return Type(value), true
	default:
		return 0, false
	}
}

// Header is the fixed 12-byte message header.
type Header struct {
	Type      Type
	RequestID uint32
	ServiceID int32
}

// RequestHeader builds the header for a new request.
func RequestHeader(requestID uint32, serviceID int32) Header {
	return Header{Type: Request, RequestID: requestID, ServiceID: serviceID}
}

// ResponseHeader builds the header for a response.
func ResponseHeader(requestID uint32, serviceID int32) Header {
	return Header{Type: Response, RequestID: requestID, ServiceID: serviceID}
}

// ErrorResponseHeader builds the header for an error response.
func ErrorResponseHeader(requestID uint32) Header {
	return ResponseHeader(requestID, ErrorServiceID)
}

// RequesterUpdateHeader builds the header for a requester update.
func RequesterUpdateHeader(requestID uint32, serviceID int32) Header {
	return Header{Type: RequesterUpdate, RequestID: requestID, ServiceID: serviceID}
}

// ResponderUpdateHeader builds the header for a responder update.
func ResponderUpdateHeader(requestID uint32, serviceID int32) Header {
	return Header{Type: ResponderUpdate, RequestID: requestID, ServiceID: serviceID}
}

// StreamHeader builds the header for a stream message. request_id is
// always 0 for stream messages.
func StreamHeader(serviceID int32) Header {
	return Header{Type: Stream, RequestID: 0, ServiceID: serviceID}
}

// IsResponse reports whether the header is for a Response message.
func (h Header) IsResponse() bool { return h.Type == Response }

// IsError reports whether a Response header carries an error body.
func (h Header) IsError() bool { return h.Type == Response && h.ServiceID == ErrorServiceID }

// Body is the payload carried by a message. StreamBody (plain bytes) and
// UnixBody (bytes plus owned file descriptors) both implement it.
type Body interface {
	// Bytes returns the byte content of the body.
	Bytes() []byte

	// Len returns the byte length of the body, without allocating.
	Len() int
}

// Closer is implemented by body types that own resources — UnixBody's
// file descriptors, in particular — that must be released if a message
// is discarded instead of handed to an application or written to the
// wire. StreamBody has nothing to release and does not implement it.
type Closer interface {
	Close()
}

// Message pairs a header with a body.
type Message[B Body] struct {
	Header Header
	Body   B
}

// New creates a Message from a header and body.
func New[B Body](header Header, body B) Message[B] {
	return Message[B]{Header: header, Body: body}
}
