// Package middleware wraps message handlers with cross-cutting behaviour.
// The same chain type serves the host (around dispatch) and the client (around send).
package middleware

import (
	"context"
	"tflite-channel/message"
)

type HandlerFunc func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one given runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
