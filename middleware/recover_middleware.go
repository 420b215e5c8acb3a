package middleware

import (
	"context"
	"fmt"
	"tflite-channel/message"

	"go.uber.org/zap"
)

// RecoverMiddleware turns a handler panic into an INTERNAL error reply.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) (reply *message.RPCMessage) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.String("channel", req.Channel),
						zap.String("method", req.Method),
						zap.Any("panic", r),
						zap.Stack("stack"))
					reply = message.ErrorReply(req, message.CodeInternal, fmt.Sprintf("panic: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
