// Package peer implements the symmetric RPC peer engine: a read loop
// that turns incoming bytes into messages, a command loop that owns the
// request tracker and the write half of the transport, and the handle
// types applications use to send and receive requests and stream
// messages.
//
// The read loop and the command loop are the only two goroutines a
// running Peer spawns. They never share memory directly: the read loop
// hands every message (or fatal read error) to the command loop over
// the same command queue that handles use to send things, which keeps
// the tracker and the write half single-threaded without an explicit
// lock.
package peer

import (
	"fmt"

	"go.uber.org/zap"

	"peerrpc/message"
	"peerrpc/rpcerr"
	"peerrpc/tracker"
	"peerrpc/transport"
)

// Peer runs the read/write loop for one connection. Use New to create
// one alongside its PeerHandle, then call Run (directly, or via Spawn)
// to drive it.
type Peer[B message.Body] struct {
	transport transport.Transport[B]
	tracker   *tracker.Tracker[B]
	commands  *tracker.Queue[command[B]]
	incoming  *tracker.Queue[incomingResult[B]]
	errorBody func(string) B
	logger    *zap.Logger
}

// New creates a Peer and a handle to it. Run must be called (directly
// or via Spawn) for the handle to do anything; until then its calls
// just block.
//
// errorBody builds the body of a synthesized error response, used when
// an incoming request can't be delivered to any PeerReadHandle because
// it has already been closed. Pass message.ErrorStreamBody or
// message.ErrorUnixBody depending on the transport in use.
//
// logger receives structured records for fatal transport errors,
// protocol errors, discarded oversized datagrams, and write commands
// aborted because the command loop had already shut down. A nil logger is replaced
// with zap.NewNop().
func New[B message.Body](t transport.Transport[B], errorBody func(string) B, logger *zap.Logger) (*Peer[B], PeerHandle[B]) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Peer[B]{
		transport: t,
		tracker:   tracker.New[B](),
		commands:  tracker.NewQueue[command[B]](),
		incoming:  tracker.NewQueue[incomingResult[B]](),
		errorBody: errorBody,
		logger:    logger,
	}
	return p, newPeerHandle(p.incoming, p.commands)
}

// Spawn creates a Peer, starts its read/write loop in a new goroutine,
// and returns a handle to it. The goroutine is detached: it cannot be
// joined, only stopped via the handle.
func Spawn[B message.Body](t transport.Transport[B], errorBody func(string) B, logger *zap.Logger) PeerHandle[B] {
	p, handle := New(t, errorBody, logger)
	go p.Run()
	return handle
}

// Transport returns the underlying transport.
func (p *Peer[B]) Transport() transport.Transport[B] { return p.transport }

// Run drives the read loop and command loop until the connection is
// closed, either because every handle was dropped, Close was called, or
// a fatal transport error occurred. It returns when both loops have
// wound down enough that nothing more will happen on this connection.
func (p *Peer[B]) Run() {
	read, write := p.transport.Split()

	readDone := make(chan struct{})
	commandDone := make(chan struct{})

	go func() {
		p.readLoop(read)
		close(readDone)
	}()
	go func() {
		p.commandLoop(write)
		close(commandDone)
	}()

	select {
	case <-readDone:
		// The read loop only stops on its own after a fatal error, or
		// once it can no longer reach the command loop at all. Either
		// way, ask the command loop to flush what's queued, then stop.
		p.commands.Send(stopCommand[B]{})
		<-commandDone

	case <-commandDone:
		// Nothing will ever observe further reads once the command
		// loop is gone, so there's no point waiting for the read loop.
		// Closing the connection unblocks it if it's still in a
		// blocking read.
		if closer, ok := p.transport.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
}

// readLoop reads messages until a fatal error occurs or the command
// loop is no longer listening.
func (p *Peer[B]) readLoop(read transport.ReadHalf[B]) {
	for {
		msg, err := read.ReadMessage()
		fatal := err != nil && rpcerr.IsFatal(err)

		if err != nil {
			if fatal {
				p.logger.Error("fatal transport error", zap.Error(rpcerr.Unwrap(err)))
			} else {
				p.logger.Warn("discarded datagram", zap.Error(err))
			}
		}

		cmd := processReceivedMessageCommand[B]{msg: msg, err: rpcerr.Unwrap(err)}
		if !p.commands.Send(cmd) {
			return
		}
		if fatal {
			return
		}
	}
}

// commandLoop owns the tracker and the write half of the transport. It
// is the only goroutine that ever touches either.
func (p *Peer[B]) commandLoop(write transport.WriteHalf[B]) {
	writeHandles := 1
	readHandleDropped := false

	for {
		if readHandleDropped && writeHandles == 0 {
			break
		}

		cmd, ok := p.commands.Recv()
		if !ok {
			break
		}
		if p.handleCommand(cmd, write, &writeHandles, &readHandleDropped) {
			break
		}
	}

	// Unblock anything still waiting: a blocked NextMessage call, and
	// any command already queued (or queued in the narrow window before
	// the close below takes effect) that will now never be processed.
	p.incoming.Close()
	p.commands.Close()
	for {
		cmd, ok := p.commands.Recv()
		if !ok {
			break
		}
		p.abortCommand(cmd)
	}
}

// abortCommand answers a command that arrived after the connection had
// already wound down, since its write handle was never unregistered
// before the loop exited.
func (p *Peer[B]) abortCommand(cmd command[B]) {
	switch c := cmd.(type) {
	case sendRequestCommand[B]:
		p.logger.Warn("send request aborted: write handle closed after connection shutdown")
		c.resultCh <- sendRequestResult[B]{err: &rpcerr.ConnectionAborted{}}
	case sendRawMessageCommand[B]:
		p.logger.Warn("send raw message aborted: write handle closed after connection shutdown")
		c.resultCh <- &rpcerr.ConnectionAborted{}
	}
}

// handleCommand processes one command and reports whether the command
// loop should stop.
func (p *Peer[B]) handleCommand(cmd command[B], write transport.WriteHalf[B], writeHandles *int, readHandleDropped *bool) bool {
	switch c := cmd.(type) {
	case sendRequestCommand[B]:
		return p.handleSendRequest(c, write)
	case sendRawMessageCommand[B]:
		return p.handleSendRawMessage(c, write)
	case processReceivedMessageCommand[B]:
		return p.handleProcessReceivedMessage(c, write)
	case stopCommand[B]:
		return true
	case unregisterReadHandleCommand[B]:
		*readHandleDropped = true
		// Nobody will ever call NextMessage again; close the incoming
		// queue right away so any request still in flight is answered
		// with a synthesized error response instead of being handed to
		// a queue nothing will drain.
		p.incoming.Close()
		return false
	case registerWriteHandleCommand[B]:
		*writeHandles++
		return false
	case unregisterWriteHandleCommand[B]:
		*writeHandles--
		return false
	default:
		return false
	}
}

func (p *Peer[B]) handleSendRequest(c sendRequestCommand[B], write transport.WriteHalf[B]) bool {
	handle, err := p.tracker.AllocateSentRequest(c.serviceID)
	if err != nil {
		c.resultCh <- sendRequestResult[B]{err: err}
		return false
	}

	msg := message.New(message.RequestHeader(handle.RequestID, handle.ServiceID), c.body)
	if err := write.WriteMessage(msg.Header, msg.Body); err != nil {
		_ = p.tracker.RemoveSentRequest(handle.RequestID)
		c.resultCh <- sendRequestResult[B]{err: err}
		return rpcerr.IsFatal(err)
	}

	c.resultCh <- sendRequestResult[B]{handle: newSentRequestHandle(handle, p.commands)}
	return false
}

func (p *Peer[B]) handleSendRawMessage(c sendRawMessageCommand[B], write transport.WriteHalf[B]) bool {
	if c.msg.Header.Type == message.Response {
		// The request is retired the moment its response is handed to
		// the transport, regardless of whether the write succeeds.
		_ = p.tracker.RemoveReceivedRequest(c.msg.Header.RequestID)
	}

	if err := write.WriteMessage(c.msg.Header, c.msg.Body); err != nil {
		c.resultCh <- err
		return rpcerr.IsFatal(err)
	}

	c.resultCh <- nil
	return false
}

func (p *Peer[B]) handleProcessReceivedMessage(c processReceivedMessageCommand[B], write transport.WriteHalf[B]) bool {
	if c.err != nil {
		return p.deliverIncoming(ReceivedMessage[B]{}, c.err, write)
	}

	incoming, err := p.tracker.ProcessIncomingMessage(c.msg)
	if err != nil {
		p.logger.Warn("protocol error", zap.Error(err))
		closeIfCloser(c.msg.Body)
		return p.deliverIncoming(ReceivedMessage[B]{}, err, write)
	}
	if incoming == nil {
		// A response or update was routed straight to its tracked
		// request; there's nothing to deliver to the read handle.
		return false
	}

	var received ReceivedMessage[B]
	switch {
	case incoming.NewRequest != nil:
		received = ReceivedMessage[B]{
			Request: newReceivedRequestHandle(*incoming.NewRequest, p.commands),
			Body:    incoming.Body,
		}
	case incoming.Stream != nil:
		received = ReceivedMessage[B]{Stream: incoming.Stream}
	}
	return p.deliverIncoming(received, nil, write)
}

// deliverIncoming hands a message to the PeerReadHandle. If the read
// handle has already been closed, an incoming request is answered with
// a synthesized error response instead of being silently dropped, so
// the remote peer isn't left waiting forever; stream messages are just
// discarded, since there is nothing to respond to.
//
// Either way, the body being dropped (never handed to an application,
// never written back to the wire) is closed here: whoever holds a
// message owns any resources attached to its body, and once
// deliverIncoming decides not to deliver it, that's us.
func (p *Peer[B]) deliverIncoming(msg ReceivedMessage[B], err error, write transport.WriteHalf[B]) bool {
	if p.incoming.Send(incomingResult[B]{msg: msg, err: err}) {
		return false
	}

	p.logger.Warn("read handle closed, dropping incoming message")
	switch {
	case msg.Request != nil:
		closeIfCloser(msg.Body)
	case msg.Stream != nil:
		closeIfCloser(msg.Stream.Body)
	}

	if msg.Request == nil {
		return false
	}

	errMsg := fmt.Sprintf("unexpected request for service %d", msg.Request.ServiceID())
	response := message.New(message.ErrorResponseHeader(msg.Request.RequestID()), p.errorBody(errMsg))
	if werr := write.WriteMessage(response.Header, response.Body); werr != nil {
		// Can't even tell the remote peer we're not handling this; the
		// connection is no longer useful.
		return true
	}
	return false
}

// closeIfCloser releases a dropped body's resources if it owns any.
// UnixBody does (its file descriptors); StreamBody doesn't implement
// message.Closer at all, so this is a no-op for it.
func closeIfCloser[B message.Body](body B) {
	if closer, ok := any(body).(message.Closer); ok {
		closer.Close()
	}
}
