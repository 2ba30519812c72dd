// Package tracker implements the request tracker: the map from request
// ID to in-flight request state that the peer engine's command loop
// consults on every outgoing SendRequest and every incoming message.
//
// A Tracker is not safe for concurrent use. It is designed to be owned
// exclusively by one goroutine (the peer engine's command loop), which
// is already the single serialization point for all outbound writes
// and tracker mutations; adding a mutex here would only protect against
// a caller that was already violating that contract.
package tracker

import (
	"peerrpc/message"
	"peerrpc/rpcerr"
)

// maxAllocationAttempts bounds how many times AllocateSentRequest probes
// the wrapping request ID counter before giving up.
const maxAllocationAttempts = 100

// Handle is the state a Tracker hands back for one tracked request: the
// caller (the peer engine) wraps it into a SentRequestHandle or
// ReceivedRequestHandle.
type Handle[B message.Body] struct {
	RequestID uint32
	ServiceID int32
	Queue     *Queue[message.Message[B]]
	Closed    *ClosedFlag
}

// Incoming is the result of routing one message read from the
// transport. Exactly one of NewRequest or Stream is non-nil; a message
// that matched an existing tracked request routes internally and
// produces a nil Incoming.
type Incoming[B message.Body] struct {
	NewRequest *Handle[B]
	Body       B
	Stream     *message.Message[B]
}

type trackedState[B message.Body] struct {
	queue  *Queue[message.Message[B]]
	closed *ClosedFlag
}

// Tracker owns the sent-request and received-request maps for one peer
// connection.
type Tracker[B message.Body] struct {
	nextSentRequestID uint32
	sentRequests      map[uint32]trackedState[B]
	receivedRequests  map[uint32]trackedState[B]
}

// New creates an empty tracker.
func New[B message.Body]() *Tracker[B] {
	return &Tracker[B]{
		sentRequests:     make(map[uint32]trackedState[B]),
		receivedRequests: make(map[uint32]trackedState[B]),
	}
}

// AllocateSentRequest claims a fresh request ID for an outgoing request
// and registers tracking state for it. It probes the wrapping counter
// up to maxAllocationAttempts times before reporting NoFreeRequestID.
func (t *Tracker[B]) AllocateSentRequest(serviceID int32) (Handle[B], error) {
	for i := 0; i < maxAllocationAttempts; i++ {
		requestID := t.nextSentRequestID
		t.nextSentRequestID++

		if _, exists := t.sentRequests[requestID]; exists {
			continue
		}

		handle := Handle[B]{
			RequestID: requestID,
			ServiceID: serviceID,
			Queue:     NewQueue[message.Message[B]](),
			Closed:    newClosedFlag(),
		}
		t.sentRequests[requestID] = trackedState[B]{queue: handle.Queue, closed: handle.Closed}
		return handle, nil
	}
	return Handle[B]{}, &rpcerr.NoFreeRequestID{}
}

// RemoveSentRequest removes a sent request's tracking state, closes its
// queue, and marks its write handles closed. Called when a response has
// been delivered, or when the caller explicitly abandons the request.
func (t *Tracker[B]) RemoveSentRequest(requestID uint32) error {
	state, ok := t.sentRequests[requestID]
	if !ok {
		return &rpcerr.UnknownRequestID{RequestID: requestID}
	}
	delete(t.sentRequests, requestID)
	state.closed.Set()
	state.queue.Close()
	return nil
}

// RegisterReceivedRequest claims request_id for an incoming request. It
// is an error if request_id is already tracked.
func (t *Tracker[B]) RegisterReceivedRequest(requestID uint32, serviceID int32) (Handle[B], error) {
	if _, exists := t.receivedRequests[requestID]; exists {
		return Handle[B]{}, &rpcerr.DuplicateRequestID{RequestID: requestID}
	}
	handle := Handle[B]{
		RequestID: requestID,
		ServiceID: serviceID,
		Queue:     NewQueue[message.Message[B]](),
		Closed:    newClosedFlag(),
	}
	t.receivedRequests[requestID] = trackedState[B]{queue: handle.Queue, closed: handle.Closed}
	return handle, nil
}

// RemoveReceivedRequest removes a received request's tracking state,
// closes its queue, and marks its write handles closed. Called when the
// response has been sent, or when the caller explicitly abandons the
// request.
func (t *Tracker[B]) RemoveReceivedRequest(requestID uint32) error {
	state, ok := t.receivedRequests[requestID]
	if !ok {
		return &rpcerr.UnknownRequestID{RequestID: requestID}
	}
	delete(t.receivedRequests, requestID)
	state.closed.Set()
	state.queue.Close()
	return nil
}

// ProcessIncomingMessage routes one message read from the transport.
//
//   - Request: registers a new received request and returns it for the
//     caller to wrap and deliver.
//   - Response: delivers to, and removes, the matching sent request.
//   - RequesterUpdate: delivers to the matching received request (the
//     side that is responding).
//   - ResponderUpdate: delivers to the matching sent request (the side
//     that is requesting).
//   - Stream: has no associated request; returned for the caller to
//     deliver directly.
//
// An update or response referencing an ID this tracker does not know
// about is a protocol error (UnknownRequestID).
func (t *Tracker[B]) ProcessIncomingMessage(msg message.Message[B]) (*Incoming[B], error) {
	switch msg.Header.Type {
	case message.Request:
		handle, err := t.RegisterReceivedRequest(msg.Header.RequestID, msg.Header.ServiceID)
		if err != nil {
			return nil, err
		}
		return &Incoming[B]{NewRequest: &handle, Body: msg.Body}, nil

	case message.Response:
		return nil, t.routeToSentAndClose(msg)

	case message.RequesterUpdate:
		return nil, t.routeTo(t.receivedRequests, msg)

	case message.ResponderUpdate:
		return nil, t.routeTo(t.sentRequests, msg)

	case message.Stream:
		m := msg
		return &Incoming[B]{Stream: &m}, nil

	default:
		return nil, &rpcerr.InvalidMessageType{Value: uint32(msg.Header.Type)}
	}
}

func (t *Tracker[B]) routeTo(table map[uint32]trackedState[B], msg message.Message[B]) error {
	requestID := msg.Header.RequestID
	state, ok := table[requestID]
	if !ok {
		return &rpcerr.UnknownRequestID{RequestID: requestID}
	}
	state.queue.Send(msg)
	return nil
}

// routeToSentAndClose delivers a Response to its sent request and
// retires the request: further messages for this ID are unknown until
// (if ever) the ID is reused.
func (t *Tracker[B]) routeToSentAndClose(msg message.Message[B]) error {
	requestID := msg.Header.RequestID
	state, ok := t.sentRequests[requestID]
	if !ok {
		return &rpcerr.UnknownRequestID{RequestID: requestID}
	}
	delete(t.sentRequests, requestID)
	state.queue.Send(msg)
	state.closed.Set()
	state.queue.Close()
	return nil
}
