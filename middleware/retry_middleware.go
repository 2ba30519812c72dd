package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"peerrpc/message"
	"peerrpc/rpcerr"
)

// RetryMiddleware retries a dispatched request with exponential
// backoff when the handler fails with a *rpcerr.DispatchTimeout or
// *rpcerr.ConnectionAborted — errors that describe a transient
// condition rather than the request itself being invalid. Any other
// error is returned immediately without retrying.
func RetryMiddleware[B message.Body](maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware[B] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc[B]) HandlerFunc[B] {
		return func(ctx context.Context, serviceID int32, body B) (B, error) {
			resp, err := next(ctx, serviceID, body)
			for i := 0; i < maxRetries; i++ {
				if err == nil {
					return resp, nil
				}
				if !isRetryable(err) {
					return resp, err
				}
				logger.Info("retrying dispatch",
					zap.Int("attempt", i+1),
					zap.Int32("service_id", serviceID),
					zap.Error(err),
				)
				time.Sleep(baseDelay * time.Duration(1<<i)) // Exponential backoff
				resp, err = next(ctx, serviceID, body)
			}
			return resp, err
		}
	}
}

func isRetryable(err error) bool {
	var timeout *rpcerr.DispatchTimeout
	var aborted *rpcerr.ConnectionAborted
	return errors.As(err, &timeout) || errors.As(err, &aborted)
}
