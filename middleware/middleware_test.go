package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"peerrpc/message"
	"peerrpc/rpcerr"
)

func echoHandler(ctx context.Context, serviceID int32, body message.StreamBody) (message.StreamBody, error) {
	return message.NewStreamBody([]byte("ok")), nil
}

func slowHandler(ctx context.Context, serviceID int32, body message.StreamBody) (message.StreamBody, error) {
	time.Sleep(200 * time.Millisecond)
	return message.NewStreamBody([]byte("ok")), nil
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware[message.StreamBody](nil)(echoHandler)

	resp, err := handler(context.Background(), 1, message.NewStreamBody(nil))
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if string(resp.Bytes()) != "ok" {
		t.Fatalf("expect payload 'ok', got '%s'", resp.Bytes())
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware[message.StreamBody](500 * time.Millisecond)(echoHandler)

	_, err := handler(context.Background(), 1, message.NewStreamBody(nil))
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware[message.StreamBody](50 * time.Millisecond)(slowHandler)

	_, err := handler(context.Background(), 1, message.NewStreamBody(nil))
	var timeoutErr *rpcerr.DispatchTimeout
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expect *rpcerr.DispatchTimeout, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first 2 requests pass immediately,
	// the 3rd is rejected.
	handler := RateLimitMiddleware[message.StreamBody](1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		if _, err := handler(context.Background(), 1, message.NewStreamBody(nil)); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}

	_, err := handler(context.Background(), 1, message.NewStreamBody(nil))
	var limited *rpcerr.RateLimited
	if !errors.As(err, &limited) {
		t.Fatalf("request 3 should be rate limited, got: %v", err)
	}
}

func TestRetrySucceedsAfterTransientTimeout(t *testing.T) {
	attempts := 0
	flaky := func(ctx context.Context, serviceID int32, body message.StreamBody) (message.StreamBody, error) {
		attempts++
		if attempts < 3 {
			return message.StreamBody{}, &rpcerr.DispatchTimeout{Timeout: time.Millisecond}
		}
		return message.NewStreamBody([]byte("ok")), nil
	}

	handler := RetryMiddleware[message.StreamBody](5, time.Millisecond, nil)(flaky)
	resp, err := handler(context.Background(), 1, message.NewStreamBody(nil))
	if err != nil {
		t.Fatalf("expect eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expect 3 attempts, got %d", attempts)
	}
	if string(resp.Bytes()) != "ok" {
		t.Fatalf("expect payload 'ok', got '%s'", resp.Bytes())
	}
}

func TestRetryDoesNotRetryNonTransientErrors(t *testing.T) {
	attempts := 0
	failing := func(ctx context.Context, serviceID int32, body message.StreamBody) (message.StreamBody, error) {
		attempts++
		return message.StreamBody{}, &rpcerr.RateLimited{}
	}

	handler := RetryMiddleware[message.StreamBody](5, time.Millisecond, nil)(failing)
	if _, err := handler(context.Background(), 1, message.NewStreamBody(nil)); err == nil {
		t.Fatal("expect an error")
	}
	if attempts != 1 {
		t.Fatalf("expect a single attempt for a non-retryable error, got %d", attempts)
	}
}

func TestChain(t *testing.T) {
	chained := Chain(LoggingMiddleware[message.StreamBody](nil), TimeOutMiddleware[message.StreamBody](500*time.Millisecond))
	handler := chained(echoHandler)

	_, err := handler(context.Background(), 1, message.NewStreamBody(nil))
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
}
