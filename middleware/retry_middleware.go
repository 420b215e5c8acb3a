package middleware

import (
	"context"
	"tflite-channel/message"
	"time"

	"go.uber.org/zap"
)

func retryable(reply *message.RPCMessage) bool {
	if reply.Status != message.StatusError {
		return false
	}
	return reply.ErrorCode == message.CodeTimeout || reply.ErrorCode == message.CodeConnection
}

// RetryMiddleware re-sends a call that failed with a timeout or connection error,
// backing off exponentially from baseDelay. Other results are returned as is.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			reply := next(ctx, req)
			for i := 0; i < maxRetries && retryable(reply); i++ {
				logger.Info("retrying call",
					zap.Int("attempt", i+1),
					zap.String("channel", req.Channel),
					zap.String("method", req.Method),
					zap.String("code", reply.ErrorCode))
				select {
				case <-time.After(baseDelay * time.Duration(1<<i)):
				case <-ctx.Done():
					return reply
				}
				reply = next(ctx, req)
			}
			return reply
		}
	}
}
