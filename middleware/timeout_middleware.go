package middleware

import (
	"context"
	"tflite-channel/message"
	"time"
)

func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.RPCMessage, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return message.ErrorReply(req, message.CodeTimeout, "request timed out")
			}
		}
	}
}
