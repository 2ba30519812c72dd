package tracker

import (
	"testing"

	"peerrpc/message"
)

func TestIncomingRequestRouting(t *testing.T) {
	tr := New[message.StreamBody]()

	incoming, err := tr.ProcessIncomingMessage(message.New(message.RequestHeader(1, 2), message.NewStreamBody(nil)))
	if err != nil {
		t.Fatalf("ProcessIncomingMessage(Request): %v", err)
	}
	if incoming.NewRequest == nil {
		t.Fatal("expected a new request handle")
	}
	handle := incoming.NewRequest

	if _, err := tr.ProcessIncomingMessage(message.New(message.RequesterUpdateHeader(1, 10), message.NewStreamBody(nil))); err != nil {
		t.Fatalf("ProcessIncomingMessage(RequesterUpdate): %v", err)
	}

	update, ok := handle.Queue.Recv()
	if !ok {
		t.Fatal("expected an update on the received-request queue")
	}
	if update.Header != message.RequesterUpdateHeader(1, 10) {
		t.Fatalf("header mismatch: got %+v", update.Header)
	}

	if err := tr.RemoveReceivedRequest(handle.RequestID); err != nil {
		t.Fatalf("RemoveReceivedRequest: %v", err)
	}

	if _, err := tr.ProcessIncomingMessage(message.New(message.RequesterUpdateHeader(1, 11), message.NewStreamBody(nil))); err == nil {
		t.Fatal("expected an unknown-request-id error after removal")
	}

	if _, ok := handle.Queue.Recv(); ok {
		t.Fatal("expected the queue to be closed and drained")
	}
}

func TestOutgoingRequestRouting(t *testing.T) {
	tr := New[message.StreamBody]()

	handle, err := tr.AllocateSentRequest(3)
	if err != nil {
		t.Fatalf("AllocateSentRequest: %v", err)
	}

	if _, err := tr.ProcessIncomingMessage(message.New(message.ResponderUpdateHeader(handle.RequestID, 12), message.NewStreamBody(nil))); err != nil {
		t.Fatalf("ProcessIncomingMessage(ResponderUpdate): %v", err)
	}

	update, ok := handle.Queue.Recv()
	if !ok {
		t.Fatal("expected an update on the sent-request queue")
	}
	if update.Header != message.ResponderUpdateHeader(handle.RequestID, 12) {
		t.Fatalf("header mismatch: got %+v", update.Header)
	}

	if _, err := tr.ProcessIncomingMessage(message.New(message.ResponseHeader(handle.RequestID, 14), message.NewStreamBody(nil))); err != nil {
		t.Fatalf("ProcessIncomingMessage(Response): %v", err)
	}

	response, ok := handle.Queue.Recv()
	if !ok {
		t.Fatal("expected the response on the sent-request queue")
	}
	if response.Header != message.ResponseHeader(handle.RequestID, 14) {
		t.Fatalf("header mismatch: got %+v", response.Header)
	}
	if !handle.Closed.IsSet() {
		t.Fatal("expected the closed flag to be set after a response")
	}

	if _, err := tr.ProcessIncomingMessage(message.New(message.ResponderUpdateHeader(handle.RequestID, 15), message.NewStreamBody(nil))); err == nil {
		t.Fatal("expected an unknown-request-id error after the response was delivered")
	}
}

func TestAllocateSentRequestWrapsAndSkipsInUseIDs(t *testing.T) {
	tr := New[message.StreamBody]()
	tr.nextSentRequestID = ^uint32(0)

	first, err := tr.AllocateSentRequest(0)
	if err != nil {
		t.Fatalf("AllocateSentRequest: %v", err)
	}
	if first.RequestID != ^uint32(0) {
		t.Fatalf("expected request ID to start at the wrap boundary, got %d", first.RequestID)
	}

	second, err := tr.AllocateSentRequest(0)
	if err != nil {
		t.Fatalf("AllocateSentRequest: %v", err)
	}
	if second.RequestID != 0 {
		t.Fatalf("expected the counter to wrap to 0, got %d", second.RequestID)
	}

	// Rewind the counter onto the two IDs still in use: both are skipped.
	tr.nextSentRequestID = ^uint32(0)
	third, err := tr.AllocateSentRequest(0)
	if err != nil {
		t.Fatalf("AllocateSentRequest: %v", err)
	}
	if third.RequestID != 1 {
		t.Fatalf("expected in-use IDs to be skipped, got %d", third.RequestID)
	}
}

func TestRegisterReceivedRequestDuplicateID(t *testing.T) {
	tr := New[message.StreamBody]()

	if _, err := tr.RegisterReceivedRequest(1, 0); err != nil {
		t.Fatalf("RegisterReceivedRequest: %v", err)
	}
	if _, err := tr.RegisterReceivedRequest(1, 0); err == nil {
		t.Fatal("expected a duplicate-request-id error")
	}
}
