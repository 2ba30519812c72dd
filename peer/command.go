package peer

import "peerrpc/message"

// command is the internal message type accepted by a peer's command
// loop. Every outbound write and every tracker mutation is funneled
// through it, so the command loop is the single serialization point
// for both.
type command[B message.Body] interface {
	isCommand()
}

// sendRequestCommand asks the command loop to allocate a request ID and
// send a Request message.
type sendRequestCommand[B message.Body] struct {
	serviceID int32
	body      B
	resultCh  chan sendRequestResult[B]
}

type sendRequestResult[B message.Body] struct {
	handle *SentRequestHandle[B]
	err    error
}

func (sendRequestCommand[B]) isCommand() {}

// sendRawMessageCommand asks the command loop to write a fully-formed
// message (an update, a response, or a stream message) to the
// transport.
type sendRawMessageCommand[B message.Body] struct {
	msg      message.Message[B]
	resultCh chan error
}

func (sendRawMessageCommand[B]) isCommand() {}

// processReceivedMessageCommand carries one message read by the read
// loop (or the fatal error that ended it) into the command loop, which
// owns the tracker and so is the only goroutine allowed to route it.
type processReceivedMessageCommand[B message.Body] struct {
	msg message.Message[B]
	err error
}

func (processReceivedMessageCommand[B]) isCommand() {}

// stopCommand asks the command loop to stop, regardless of outstanding
// handles.
type stopCommand[B message.Body] struct{}

func (stopCommand[B]) isCommand() {}

// unregisterReadHandleCommand notifies the command loop that the
// PeerReadHandle has been dropped.
type unregisterReadHandleCommand[B message.Body] struct{}

func (unregisterReadHandleCommand[B]) isCommand() {}

// registerWriteHandleCommand notifies the command loop that a
// PeerWriteHandle was cloned.
type registerWriteHandleCommand[B message.Body] struct{}

func (registerWriteHandleCommand[B]) isCommand() {}

// unregisterWriteHandleCommand notifies the command loop that a
// PeerWriteHandle was dropped.
type unregisterWriteHandleCommand[B message.Body] struct{}

func (unregisterWriteHandleCommand[B]) isCommand() {}
