package peer

import (
	"net"
	"testing"

	"peerrpc/message"
	"peerrpc/rpcerr"
	"peerrpc/transport"
)

// spawnPair wires two peers over a net.Pipe and returns their handles.
func spawnPair(t *testing.T) (PeerHandle[message.StreamBody], PeerHandle[message.StreamBody]) {
	t.Helper()
	connA, connB := net.Pipe()
	handleA := Spawn[message.StreamBody](transport.NewDefaultStreamTransport(connA), message.ErrorStreamBody, nil)
	handleB := Spawn[message.StreamBody](transport.NewDefaultStreamTransport(connB), message.ErrorStreamBody, nil)
	return handleA, handleB
}

func TestRequestResponseRoundTrip(t *testing.T) {
	handleA, handleB := spawnPair(t)
	defer handleA.Close()
	defer handleB.Close()

	sent, err := handleA.SendRequest(1, message.NewStreamBody([]byte("ping")))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	requestID := sent.RequestID()

	received, err := handleB.NextMessage()
	if err != nil {
		t.Fatalf("NextMessage: %v", err)
	}
	if received.Request == nil {
		t.Fatal("expected a received request")
	}
	if string(received.Body.Bytes()) != "ping" {
		t.Fatalf("body mismatch: got %q", received.Body.Bytes())
	}

	if err := received.Request.SendResponse(2, message.NewStreamBody([]byte("pong"))); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}

	response, err := sent.RecvResponse()
	if err != nil {
		t.Fatalf("RecvResponse: %v", err)
	}
	if response.Header != message.ResponseHeader(requestID, 2) {
		t.Fatalf("header mismatch: got %+v", response.Header)
	}
	if string(response.Body.Bytes()) != "pong" {
		t.Fatalf("body mismatch: got %q", response.Body.Bytes())
	}
}

func TestBidirectionalUpdates(t *testing.T) {
	handleA, handleB := spawnPair(t)
	defer handleA.Close()
	defer handleB.Close()

	sent, err := handleA.SendRequest(1, message.NewStreamBody([]byte("start")))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	requestID := sent.RequestID()

	received, err := handleB.NextMessage()
	if err != nil {
		t.Fatalf("NextMessage: %v", err)
	}

	if err := sent.SendUpdate(3, message.NewStreamBody([]byte("from requester"))); err != nil {
		t.Fatalf("requester SendUpdate: %v", err)
	}
	update, ok := received.Request.RecvUpdate()
	if !ok {
		t.Fatal("expected a requester update")
	}
	if update.Header != message.RequesterUpdateHeader(requestID, 3) {
		t.Fatalf("header mismatch: got %+v", update.Header)
	}

	if err := received.Request.SendUpdate(5, message.NewStreamBody([]byte("from responder"))); err != nil {
		t.Fatalf("responder SendUpdate: %v", err)
	}
	update, ok = sent.RecvUpdate()
	if !ok {
		t.Fatal("expected a responder update")
	}
	if update.Header != message.ResponderUpdateHeader(requestID, 5) {
		t.Fatalf("header mismatch: got %+v", update.Header)
	}

	if err := received.Request.SendResponse(7, message.NewStreamBody([]byte("done"))); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}
	if _, err := sent.RecvResponse(); err != nil {
		t.Fatalf("RecvResponse: %v", err)
	}
}

func TestPeekedResponseIsNotLost(t *testing.T) {
	handleA, handleB := spawnPair(t)
	defer handleA.Close()
	defer handleB.Close()

	sent, err := handleA.SendRequest(1, message.NewStreamBody([]byte("start")))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	requestID := sent.RequestID()

	received, err := handleB.NextMessage()
	if err != nil {
		t.Fatalf("NextMessage: %v", err)
	}

	if err := received.Request.SendUpdate(5, message.NewStreamBody([]byte("update 1"))); err != nil {
		t.Fatalf("SendUpdate: %v", err)
	}
	if err := received.Request.SendUpdate(6, message.NewStreamBody([]byte("update 2"))); err != nil {
		t.Fatalf("SendUpdate: %v", err)
	}
	if err := received.Request.SendResponse(7, message.NewStreamBody([]byte("goodbye"))); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}

	if _, ok := sent.RecvUpdate(); !ok {
		t.Fatal("expected the first update")
	}
	if _, ok := sent.RecvUpdate(); !ok {
		t.Fatal("expected the second update")
	}
	// The third message is the response; RecvUpdate must report it's not
	// an update and stash it in the peek buffer instead of consuming it.
	if _, ok := sent.RecvUpdate(); ok {
		t.Fatal("expected recv_update to report no more updates")
	}

	response, err := sent.RecvResponse()
	if err != nil {
		t.Fatalf("RecvResponse: %v", err)
	}
	if response.Header != message.ResponseHeader(requestID, 7) {
		t.Fatalf("header mismatch: got %+v", response.Header)
	}
	if string(response.Body.Bytes()) != "goodbye" {
		t.Fatalf("body mismatch: got %q", response.Body.Bytes())
	}
}

func TestPeekedUpdateIsNotLost(t *testing.T) {
	handleA, handleB := spawnPair(t)
	defer handleA.Close()
	defer handleB.Close()

	sent, err := handleA.SendRequest(1, message.NewStreamBody([]byte("start")))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	requestID := sent.RequestID()

	received, err := handleB.NextMessage()
	if err != nil {
		t.Fatalf("NextMessage: %v", err)
	}

	if err := received.Request.SendUpdate(5, message.NewStreamBody([]byte("update"))); err != nil {
		t.Fatalf("SendUpdate: %v", err)
	}
	if err := received.Request.SendResponse(6, message.NewStreamBody([]byte("goodbye"))); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}

	// Asking for the response first should stash the update it finds
	// instead in the peek buffer.
	if _, err := sent.RecvResponse(); err == nil {
		t.Fatal("expected an unexpected-message-type error")
	} else if _, ok := rpcerr.Unwrap(err).(*rpcerr.UnexpectedMessageType); !ok {
		t.Fatalf("expected *rpcerr.UnexpectedMessageType, got %T: %v", err, err)
	}

	update, ok := sent.RecvUpdate()
	if !ok {
		t.Fatal("expected the stashed update")
	}
	if update.Header != message.ResponderUpdateHeader(requestID, 5) {
		t.Fatalf("header mismatch: got %+v", update.Header)
	}

	response, err := sent.RecvResponse()
	if err != nil {
		t.Fatalf("RecvResponse: %v", err)
	}
	if response.Header != message.ResponseHeader(requestID, 6) {
		t.Fatalf("header mismatch: got %+v", response.Header)
	}
}

func TestClosedAfterResponse(t *testing.T) {
	handleA, handleB := spawnPair(t)
	defer handleA.Close()
	defer handleB.Close()

	sent, err := handleA.SendRequest(1, message.NewStreamBody(nil))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	received, err := handleB.NextMessage()
	if err != nil {
		t.Fatalf("NextMessage: %v", err)
	}

	if err := received.Request.SendResponse(1, message.NewStreamBody(nil)); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}
	if _, err := sent.RecvResponse(); err != nil {
		t.Fatalf("RecvResponse: %v", err)
	}

	if err := sent.SendUpdate(1, message.NewStreamBody(nil)); err == nil {
		t.Fatal("expected sending an update after the response to fail")
	}
	if err := received.Request.SendUpdate(1, message.NewStreamBody(nil)); err == nil {
		t.Fatal("expected sending an update after the response to fail")
	}
}

func TestDroppedReadHandleSynthesizesErrorResponse(t *testing.T) {
	connA, connB := net.Pipe()
	handleA := Spawn[message.StreamBody](transport.NewDefaultStreamTransport(connA), message.ErrorStreamBody, nil)
	handleB := Spawn[message.StreamBody](transport.NewDefaultStreamTransport(connB), message.ErrorStreamBody, nil)
	defer handleA.Close()

	readB, writeB := handleB.Split()
	readB.Close()
	_ = writeB

	sent, err := handleA.SendRequest(1, message.NewStreamBody([]byte("hello")))
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	response, err := sent.RecvResponse()
	if err != nil {
		t.Fatalf("expected a synthesized error response, got error: %v", err)
	}
	if !response.Header.IsError() {
		t.Fatalf("expected an error response, got %+v", response.Header)
	}
}

func TestDuplicateIncomingRequestID(t *testing.T) {
	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	peerB, handleB := New[message.StreamBody](transport.NewDefaultStreamTransport(connB), message.ErrorStreamBody, nil)
	go peerB.Run()
	defer handleB.Close()

	_, writeA := transport.NewDefaultStreamTransport(connA).Split()

	if err := writeA.WriteMessage(message.RequestHeader(1, 2), message.NewStreamBody(nil)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if _, err := handleB.NextMessage(); err != nil {
		t.Fatalf("NextMessage: %v", err)
	}

	if err := writeA.WriteMessage(message.RequestHeader(1, 2), message.NewStreamBody(nil)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if _, err := handleB.NextMessage(); err == nil {
		t.Fatal("expected a duplicate-request-id error")
	}
}
