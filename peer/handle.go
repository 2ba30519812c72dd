package peer

import (
	"peerrpc/message"
	"peerrpc/rpcerr"
	"peerrpc/tracker"
)

// PeerHandle is used to send and receive requests and stream messages
// on a connection. Dropping it (letting it go out of scope without
// splitting it) does not by itself stop the peer loop in Go the way it
// would in Rust; call Close, or split it and let both halves be
// garbage collected after calling their Close methods, to shut the
// connection down deterministically.
type PeerHandle[B message.Body] struct {
	read  PeerReadHandle[B]
	write PeerWriteHandle[B]
}

// PeerReadHandle receives incoming requests and stream messages.
type PeerReadHandle[B message.Body] struct {
	incoming *tracker.Queue[incomingResult[B]]
	commands *tracker.Queue[command[B]]
	closed   bool
}

// PeerWriteHandle sends requests and stream messages.
type PeerWriteHandle[B message.Body] struct {
	commands *tracker.Queue[command[B]]
	closed   bool
}

// PeerCloseHandle only closes the connection. It can be cloned and
// moved around independently of the read and write handles.
type PeerCloseHandle[B message.Body] struct {
	commands *tracker.Queue[command[B]]
}

type incomingResult[B message.Body] struct {
	msg ReceivedMessage[B]
	err error
}

func newPeerHandle[B message.Body](incoming *tracker.Queue[incomingResult[B]], commands *tracker.Queue[command[B]]) PeerHandle[B] {
	return PeerHandle[B]{
		read:  PeerReadHandle[B]{incoming: incoming, commands: commands},
		write: PeerWriteHandle[B]{commands: commands},
	}
}

// Split divides the handle into an independent read half and write
// half that can be moved into different goroutines. The peer loop
// keeps running until both halves (and every clone of the write half)
// have been closed.
func (h PeerHandle[B]) Split() (PeerReadHandle[B], PeerWriteHandle[B]) {
	return h.read, h.write
}

// NextMessage returns the next request or stream message from the
// remote peer.
func (h *PeerHandle[B]) NextMessage() (ReceivedMessage[B], error) {
	return h.read.NextMessage()
}

// SendRequest sends a new request to the remote peer.
func (h *PeerHandle[B]) SendRequest(serviceID int32, body B) (*SentRequestHandle[B], error) {
	return h.write.SendRequest(serviceID, body)
}

// SendStream sends a stream message to the remote peer.
func (h *PeerHandle[B]) SendStream(serviceID int32, body B) error {
	return h.write.SendStream(serviceID, body)
}

// Close closes the connection with the remote peer.
func (h *PeerHandle[B]) Close() {
	h.read.Close()
	h.CloseHandle().Close()
}

// CloseHandle returns a clonable handle that can only close the
// connection.
func (h *PeerHandle[B]) CloseHandle() PeerCloseHandle[B] {
	return h.read.CloseHandle()
}

// NextMessage returns the next request or stream message from the
// remote peer. Errors for malformed incoming messages (for example, an
// update for a request nobody tracks) are also reported here.
func (h *PeerReadHandle[B]) NextMessage() (ReceivedMessage[B], error) {
	result, ok := h.incoming.Recv()
	if !ok {
		return ReceivedMessage[B]{}, &rpcerr.ConnectionAborted{}
	}
	return result.msg, result.err
}

// Close releases this handle's slot in the peer's handle count. The
// connection stays open while any write handle is still registered;
// requests arriving after Close are answered with an error response.
// The peer loop stops once the read handle and every write handle are
// closed. Safe to call more than once.
func (h *PeerReadHandle[B]) Close() {
	if h.closed {
		return
	}
	h.closed = true
	h.commands.Send(unregisterReadHandleCommand[B]{})
}

// CloseHandle returns a clonable handle that can only close the
// connection.
func (h *PeerReadHandle[B]) CloseHandle() PeerCloseHandle[B] {
	return PeerCloseHandle[B]{commands: h.commands}
}

// SendRequest sends a new request to the remote peer.
func (h *PeerWriteHandle[B]) SendRequest(serviceID int32, body B) (*SentRequestHandle[B], error) {
	resultCh := make(chan sendRequestResult[B], 1)
	if !h.commands.Send(sendRequestCommand[B]{serviceID: serviceID, body: body, resultCh: resultCh}) {
		return nil, &rpcerr.ConnectionAborted{}
	}
	result := <-resultCh
	return result.handle, result.err
}

// SendStream sends a stream message to the remote peer.
func (h *PeerWriteHandle[B]) SendStream(serviceID int32, body B) error {
	return sendRawMessage(h.commands, message.New(message.StreamHeader(serviceID), body))
}

// Clone returns an independent write handle sharing the same
// connection. The peer loop keeps running until every clone (and the
// read handle) has been closed.
func (h PeerWriteHandle[B]) Clone() PeerWriteHandle[B] {
	h.commands.Send(registerWriteHandleCommand[B]{})
	return PeerWriteHandle[B]{commands: h.commands}
}

// Close releases this write handle's claim on the peer loop. Safe to
// call more than once.
func (h *PeerWriteHandle[B]) Close() {
	if h.closed {
		return
	}
	h.closed = true
	h.commands.Send(unregisterWriteHandleCommand[B]{})
}

// CloseHandle returns a clonable handle that can only close the
// connection.
func (h *PeerWriteHandle[B]) CloseHandle() PeerCloseHandle[B] {
	return PeerCloseHandle[B]{commands: h.commands}
}

// Close closes the connection with the remote peer.
func (h PeerCloseHandle[B]) Close() {
	h.commands.Send(stopCommand[B]{})
}
