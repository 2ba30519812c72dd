package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"peerrpc/message"
)

// LoggingMiddleware records the service ID, duration, and any error for
// each dispatched request. It captures the start time before calling
// next, and logs the elapsed time after next returns.
//
// A nil logger is replaced with zap.NewNop(), so callers that don't
// care about logging don't need to thread a logger through just to use
// this middleware.
func LoggingMiddleware[B message.Body](logger *zap.Logger) Middleware[B] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc[B]) HandlerFunc[B] {
		return func(ctx context.Context, serviceID int32, body B) (B, error) {
			start := time.Now()

			resp, err := next(ctx, serviceID, body)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("dispatch failed",
					zap.Int32("service_id", serviceID),
					zap.Duration("duration", duration),
					zap.Error(err),
				)
			} else {
				logger.Debug("dispatched request",
					zap.Int32("service_id", serviceID),
					zap.Duration("duration", duration),
				)
			}
			return resp, err
		}
	}
}
