package middleware

import (
	"context"
	"time"

	"peerrpc/message"
	"peerrpc/rpcerr"
)

// TimeOutMiddleware enforces a maximum duration for each dispatched
// request. If the handler doesn't complete within the timeout, it
// returns *rpcerr.DispatchTimeout immediately.
//
// Implementation:
//  1. Create a context with timeout (ctx.Done() fires when timeout expires)
//  2. Run the next handler in a goroutine, sending its result to a channel
//  3. Select between the result channel and ctx.Done()
//
// Note: the handler goroutine is NOT cancelled — it continues running in the background.
// The timeout only controls when the caller gives up waiting. For true cancellation,
// the handler must check ctx.Done() internally.
func TimeOutMiddleware[B message.Body](timeout time.Duration) Middleware[B] {
	return func(next HandlerFunc[B]) HandlerFunc[B] {
		return func(ctx context.Context, serviceID int32, body B) (B, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				resp B
				err  error
			}
			done := make(chan result, 1) // Buffered: prevent goroutine leak if timeout fires
			go func() {
				resp, err := next(ctx, serviceID, body)
				done <- result{resp: resp, err: err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				var zero B
				return zero, &rpcerr.DispatchTimeout{Timeout: timeout}
			}
		}
	}
}
