// Package middleware implements the onion model middleware chain for
// dispatching received requests to application handlers.
//
// Middleware wraps the application handler to add cross-cutting
// concerns (logging, timeout, rate limiting, retry) without modifying
// the handler itself.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
//
// Each middleware can:
//   - Do pre-processing (before calling next)
//   - Call next(ctx, serviceID, body) to pass to the next layer
//   - Do post-processing (after next returns)
//   - Short-circuit by returning early without calling next (e.g., rate limiting)
package middleware

import (
	"context"

	"peerrpc/message"
)

// HandlerFunc dispatches one received request body to a service and
// returns its response body. serviceID identifies which service the
// request was addressed to; the caller (typically a loop around
// peer.PeerReadHandle.NextMessage) is responsible for turning a
// returned error into a response error body and calling
// ReceivedRequestHandle.SendResponse.
type HandlerFunc[B message.Body] func(ctx context.Context, serviceID int32, body B) (B, error)

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware[B message.Body] func(next HandlerFunc[B]) HandlerFunc[B]

// Chain composes multiple middlewares into a single middleware.
// It builds the chain from right to left so that the first middleware in the list
// is the outermost layer (executed first on request, last on response).
//
// Example:
//
//	chain := Chain(LoggingMiddleware[B](logger), TimeOutMiddleware[B](time.Second), RateLimitMiddleware[B](10, 20))
//	handler := chain(businessHandler)
//	// Execution: Logging → Timeout → RateLimit → businessHandler → RateLimit → Timeout → Logging
func Chain[B message.Body](middlewares ...Middleware[B]) Middleware[B] {
	return func(next HandlerFunc[B]) HandlerFunc[B] {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
