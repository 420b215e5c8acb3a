package middleware

import (
	"context"
	"tflite-channel/message"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type requestIDKey struct{}

// RequestID returns the id LoggingMiddleware attached to ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			id := uuid.NewString()
			ctx = context.WithValue(ctx, requestIDKey{}, id)

			start := time.Now()
			reply := next(ctx, req)
			fields := []zap.Field{
				zap.String("request_id", id),
				zap.String("channel", req.Channel),
				zap.String("method", req.Method),
				zap.Stringer("status", reply.Status),
				zap.Duration("duration", time.Since(start)),
			}
			if reply.Status == message.StatusError {
				logger.Warn("call failed", append(fields, zap.String("code", reply.ErrorCode), zap.String("error", reply.Error))...)
			} else {
				logger.Debug("call", fields...)
			}
			return reply
		}
	}
}
