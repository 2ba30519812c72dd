// Package rpcerr defines the closed error taxonomy used throughout the
// peer engine: transport errors (with a fatality flag), protocol errors,
// request-closed errors, and connection-aborted errors.
//
// Every user-facing call in peerrpc returns one of these, wrapped with
// the standard library's error-wrapping so callers can use errors.As
// and errors.Is to distinguish them.
package rpcerr

import (
	"errors"
	"fmt"
	"time"

	"peerrpc/message"
)

// InvalidMessageType is returned when a decoded header's message_type
// field is outside the range [0, 4].
type InvalidMessageType struct {
	Value uint32
}

func (e *InvalidMessageType) Error() string {
	return fmt.Sprintf("invalid message type: expected a value in the range [0, 4], got %d", e.Value)
}

// PayloadTooLarge is returned when a message body exceeds the
// configured read or write limit for its direction.
type PayloadTooLarge struct {
	BodyLen int
	MaxLen  uint32
}

func (e *PayloadTooLarge) Error() string {
	return fmt.Sprintf("payload too large: maximum payload size is %d, got %d", e.MaxLen, e.BodyLen)
}

// CheckPayloadTooLarge returns a *PayloadTooLarge error if bodyLen
// exceeds maxLen, nil otherwise.
func CheckPayloadTooLarge(bodyLen int, maxLen uint32) error {
	if bodyLen <= int(maxLen) {
		return nil
	}
	return &PayloadTooLarge{BodyLen: bodyLen, MaxLen: maxLen}
}

// ShortMessage is returned by the datagram transport when a received
// datagram is smaller than the 12-byte header.
type ShortMessage struct {
	Len int
}

func (e *ShortMessage) Error() string {
	return fmt.Sprintf("short message: expected at least 12 header bytes, got %d", e.Len)
}

// NoFreeRequestID is returned when the tracker could not find a free
// outgoing request ID within its allocation attempt bound.
type NoFreeRequestID struct{}

func (e *NoFreeRequestID) Error() string { return "no free request ID was found" }

// DuplicateRequestID is returned when an incoming Request reuses a
// request_id already tracked as a received request.
type DuplicateRequestID struct {
	RequestID uint32
}

func (e *DuplicateRequestID) Error() string {
	return fmt.Sprintf("duplicate request ID: request ID %d is already associated with an open request", e.RequestID)
}

// UnknownRequestID is returned when an incoming Response or update
// message references a request_id that is not tracked.
type UnknownRequestID struct {
	RequestID uint32
}

func (e *UnknownRequestID) Error() string {
	return fmt.Sprintf("unknown request ID: request ID %d is not associated with an open request", e.RequestID)
}

// UnexpectedMessageType is returned when a sent-request handle's
// RecvResponse call reads an update message instead of a response.
type UnexpectedMessageType struct {
	Got      message.Type
	Expected message.Type
}

func (e *UnexpectedMessageType) Error() string {
	return fmt.Sprintf("unexpected message type: expected %v, got %v", e.Expected, e.Got)
}

// RequestClosed is returned by a write sub-handle when the request's
// closed-flag has already been set (the response was observed, or the
// handle was explicitly removed), so sending would touch a request ID
// that may already have been reused.
type RequestClosed struct{}

func (e *RequestClosed) Error() string { return "request is closed, can not send more messages" }

// ConnectionAborted is returned for reads after EOF, or when an
// operation can no longer reach the peer engine because its command
// loop has stopped.
type ConnectionAborted struct{}

func (e *ConnectionAborted) Error() string { return "connection aborted" }

// RemoteError carries the UTF-8 error string from an error Response
// sent by the peer.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// RateLimited is returned by RateLimitMiddleware when a dispatched
// request has no token available.
type RateLimited struct{}

func (e *RateLimited) Error() string { return "rate limit exceeded" }

// DispatchTimeout is returned by TimeOutMiddleware when a handler does
// not complete within its configured deadline.
type DispatchTimeout struct {
	Timeout time.Duration
}

func (e *DispatchTimeout) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Timeout)
}

// IsFatal reports whether err, if it is (or wraps) a transport-level
// error, should be treated as fatal to the connection. Non-transport
// errors (protocol errors, request-closed, ...) are never fatal by this
// definition; the transport layer attaches fatality by wrapping an
// error with NewFatal.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// FatalError wraps an underlying transport error to mark it as fatal:
// the connection must be torn down. Non-fatal transport errors
// (PayloadTooLarge on write, an oversized datagram body on read) are
// returned unwrapped and only affect the single offending operation.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// NewFatal wraps err as a fatal transport error.
func NewFatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Unwrap returns the error a caller outside the transport layer should
// see: the inner error of a *FatalError, or err itself if it isn't one.
// The fatality of a transport error is only meaningful to the read loop
// that decides whether to keep reading; application code just gets the
// underlying reason.
func Unwrap(err error) error {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	return err
}
