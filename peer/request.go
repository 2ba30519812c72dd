package peer

import (
	"peerrpc/message"
	"peerrpc/rpcerr"
	"peerrpc/tracker"
)

// sendRawMessage submits msg to the command loop and waits for the
// result. It is shared by every handle type that writes to the
// connection: PeerWriteHandle, SentRequestWriteHandle, and
// ReceivedRequestWriteHandle.
func sendRawMessage[B message.Body](commands *tracker.Queue[command[B]], msg message.Message[B]) error {
	resultCh := make(chan error, 1)
	if !commands.Send(sendRawMessageCommand[B]{msg: msg, resultCh: resultCh}) {
		return &rpcerr.ConnectionAborted{}
	}
	return <-resultCh
}

// SentRequestHandle is returned for a request this peer sent. It
// receives update and response messages from the remote peer, and can
// send further update messages of its own.
type SentRequestHandle[B message.Body] struct {
	write SentRequestWriteHandle[B]
	queue *tracker.Queue[message.Message[B]]
	peek  *message.Message[B]
}

// SentRequestWriteHandle sends update messages for a sent request. It
// can be cloned and used concurrently with the owning
// SentRequestHandle, but cannot receive anything.
type SentRequestWriteHandle[B message.Body] struct {
	requestID uint32
	serviceID int32
	closed    *tracker.ClosedFlag
	commands  *tracker.Queue[command[B]]
}

func newSentRequestHandle[B message.Body](handle tracker.Handle[B], commands *tracker.Queue[command[B]]) *SentRequestHandle[B] {
	return &SentRequestHandle[B]{
		write: SentRequestWriteHandle[B]{
			requestID: handle.RequestID,
			serviceID: handle.ServiceID,
			closed:    handle.Closed,
			commands:  commands,
		},
		queue: handle.Queue,
	}
}

// RequestID returns the request ID assigned to this request.
func (h *SentRequestHandle[B]) RequestID() uint32 { return h.write.RequestID() }

// ServiceID returns the service ID of the initial request.
func (h *SentRequestHandle[B]) ServiceID() int32 { return h.write.ServiceID() }

// WriteHandle returns a clonable write handle for this request.
func (h *SentRequestHandle[B]) WriteHandle() SentRequestWriteHandle[B] { return h.write }

// RecvUpdate receives the next update message from the remote peer.
// It reports ok == false once the final response arrives instead of an
// update; the response can then be read with RecvResponse.
func (h *SentRequestHandle[B]) RecvUpdate() (msg message.Message[B], ok bool) {
	msg, ok = h.recvMessage()
	if !ok {
		return message.Message[B]{}, false
	}
	if msg.Header.Type == message.ResponderUpdate {
		return msg, true
	}
	h.peek = &msg
	return message.Message[B]{}, false
}

// RecvResponse receives the final response message from the remote
// peer. If an update message arrives instead, it is returned as an
// *rpcerr.UnexpectedMessageType error and stashed so a subsequent
// RecvUpdate call still observes it.
func (h *SentRequestHandle[B]) RecvResponse() (message.Message[B], error) {
	msg, ok := h.recvMessage()
	if !ok {
		return message.Message[B]{}, &rpcerr.ConnectionAborted{}
	}
	if msg.Header.Type == message.Response {
		return msg, nil
	}
	h.peek = &msg
	return message.Message[B]{}, &rpcerr.UnexpectedMessageType{Got: msg.Header.Type, Expected: message.Response}
}

func (h *SentRequestHandle[B]) recvMessage() (message.Message[B], bool) {
	if h.peek != nil {
		msg := *h.peek
		h.peek = nil
		return msg, true
	}
	return h.queue.Recv()
}

// SendUpdate sends an update message for this request to the remote
// peer.
func (h *SentRequestHandle[B]) SendUpdate(serviceID int32, body B) error {
	return h.write.SendUpdate(serviceID, body)
}

// RequestID returns the request ID assigned to this request.
func (w SentRequestWriteHandle[B]) RequestID() uint32 { return w.requestID }

// ServiceID returns the service ID of the initial request.
func (w SentRequestWriteHandle[B]) ServiceID() int32 { return w.serviceID }

// SendUpdate sends an update message for this request to the remote
// peer. It fails with *rpcerr.RequestClosed once the response has
// already been observed: the request ID may have been reused by then.
func (w SentRequestWriteHandle[B]) SendUpdate(serviceID int32, body B) error {
	if w.closed.IsSet() {
		return &rpcerr.RequestClosed{}
	}
	return sendRawMessage(w.commands, message.New(message.RequesterUpdateHeader(w.requestID, serviceID), body))
}

// ReceivedRequestHandle is returned for a request this peer received.
// It receives update messages from the remote peer, and sends update
// and response messages of its own.
type ReceivedRequestHandle[B message.Body] struct {
	write ReceivedRequestWriteHandle[B]
	queue *tracker.Queue[message.Message[B]]
}

// ReceivedRequestWriteHandle sends update and response messages for a
// received request. It can be cloned and used concurrently with the
// owning ReceivedRequestHandle, but cannot receive anything.
type ReceivedRequestWriteHandle[B message.Body] struct {
	requestID uint32
	serviceID int32
	closed    *tracker.ClosedFlag
	commands  *tracker.Queue[command[B]]
}

func newReceivedRequestHandle[B message.Body](handle tracker.Handle[B], commands *tracker.Queue[command[B]]) *ReceivedRequestHandle[B] {
	return &ReceivedRequestHandle[B]{
		write: ReceivedRequestWriteHandle[B]{
			requestID: handle.RequestID,
			serviceID: handle.ServiceID,
			closed:    handle.Closed,
			commands:  commands,
		},
		queue: handle.Queue,
	}
}

// RequestID returns the request ID of the received request.
func (h *ReceivedRequestHandle[B]) RequestID() uint32 { return h.write.RequestID() }

// ServiceID returns the service ID of the received request.
func (h *ReceivedRequestHandle[B]) ServiceID() int32 { return h.write.ServiceID() }

// WriteHandle returns a clonable write handle for this request.
func (h *ReceivedRequestHandle[B]) WriteHandle() ReceivedRequestWriteHandle[B] { return h.write }

// RecvUpdate receives the next update message from the remote peer. It
// reports ok == false once the request is retired (e.g. the response
// was already sent from this side).
func (h *ReceivedRequestHandle[B]) RecvUpdate() (message.Message[B], bool) {
	return h.queue.Recv()
}

// SendUpdate sends an update message for this request to the remote
// peer.
func (h *ReceivedRequestHandle[B]) SendUpdate(serviceID int32, body B) error {
	return h.write.SendUpdate(serviceID, body)
}

// SendResponse sends the final response for this request to the remote
// peer.
func (h *ReceivedRequestHandle[B]) SendResponse(serviceID int32, body B) error {
	return h.write.SendResponse(serviceID, body)
}

// RequestID returns the request ID of the received request.
func (w ReceivedRequestWriteHandle[B]) RequestID() uint32 { return w.requestID }

// ServiceID returns the service ID of the received request.
func (w ReceivedRequestWriteHandle[B]) ServiceID() int32 { return w.serviceID }

// SendUpdate sends an update message for this request to the remote
// peer. It fails with *rpcerr.RequestClosed once the response has
// already been sent: the request ID may have been reused by then.
func (w ReceivedRequestWriteHandle[B]) SendUpdate(serviceID int32, body B) error {
	if w.closed.IsSet() {
		return &rpcerr.RequestClosed{}
	}
	return sendRawMessage(w.commands, message.New(message.ResponderUpdateHeader(w.requestID, serviceID), body))
}

// SendResponse sends the final response for this request to the remote
// peer.
func (w ReceivedRequestWriteHandle[B]) SendResponse(serviceID int32, body B) error {
	if w.closed.IsSet() {
		return &rpcerr.RequestClosed{}
	}
	return sendRawMessage(w.commands, message.New(message.ResponseHeader(w.requestID, serviceID), body))
}

// ReceivedMessage is an incoming request or stream message delivered to
// a PeerReadHandle. Exactly one of Request or Stream is non-nil.
type ReceivedMessage[B message.Body] struct {
	// Request is set for an incoming request; Body carries its initial
	// payload (the handle itself carries no body, mirroring how later
	// update/response messages are delivered separately).
	Request *ReceivedRequestHandle[B]
	Body    B

	// Stream is set for an incoming one-shot stream message.
	Stream *message.Message[B]
}
