// Package server is the engine host: it attaches plugins, binds their channels to a
// Messenger and serves method calls arriving over TCP.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest (parallel processing)
//	    → Codec.Decode → Middleware Chain → dispatch (Messenger) → Codec.Encode → write result
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"tflite-channel/channel"
	"tflite-channel/codec"
	"tflite-channel/message"
	"tflite-channel/middleware"
	"tflite-channel/plugin"
	"tflite-channel/protocol"
	"tflite-channel/registry"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Server hosts plugins and serves their channels.
type Server struct {
	messenger   *channel.Messenger
	plugins     *plugin.Host
	logger      *zap.Logger
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(dispatch)))

	registry      registry.Registry // nil if not using discovery
	advertiseAddr string            // routable address put in the registry, unlike ":8080"
	instance      registry.ServiceInstance
	ttl           int64

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	inflight conc.WaitGroup
	shutdown atomic.Bool // suppresses the Accept error caused by Shutdown
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRegistry advertises every bound channel at instance.Addr with a ttl-second lease.
func WithRegistry(reg registry.Registry, instance registry.ServiceInstance, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.instance = instance
		s.advertiseAddr = instance.Addr
		s.ttl = ttl
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		messenger: channel.NewMessenger(),
		logger:    zap.NewNop(),
		conns:     make(map[net.Conn]struct{}),
		ttl:       10,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.plugins = plugin.NewHost(s.messenger, s.logger)
	s.messenger.OnChange(s.channelChanged)
	return s
}

// Messenger exposes the channel table, e.g. for binding handlers without a plugin.
func (svr *Server) Messenger() *channel.Messenger {
	return svr.messenger
}

// AddPlugin attaches p; its channels become reachable immediately.
func (svr *Server) AddPlugin(p plugin.Plugin) error {
	return svr.plugins.Add(p)
}

// RemovePlugin detaches the named plugin.
func (svr *Server) RemovePlugin(name string) bool {
	return svr.plugins.Remove(name)
}

// Use registers a middleware. Middlewares run in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and serves until Shutdown.
func (svr *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener)
}

// ServeListener serves on an existing listener until Shutdown.
func (svr *Server) ServeListener(listener net.Listener) error {
	// Built once: Chain(A, B)(h) runs A.before → B.before → h → B.after → A.after
	svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatch)

	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		listener.Close()
		return nil
	}
	svr.listener = listener
	svr.mu.Unlock()
	svr.logger.Info("engine host listening", zap.Stringer("addr", listener.Addr()))

	for _, name := range svr.messenger.Names() {
		svr.register(name)
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		svr.trackConn(conn, true)
		go svr.handleConn(conn)
	}
}

// Addr returns the listener address, or nil before Serve.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

func (svr *Server) trackConn(conn net.Conn, add bool) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if add {
		svr.conns[conn] = struct{}{}
	} else {
		delete(svr.conns, conn)
	}
}

// handleConn reads frames sequentially but hands each request to its own goroutine.
// writeMu is shared by those goroutines so result frames never interleave.
func (svr *Server) handleConn(conn net.Conn) {
	defer func() {
		conn.Close()
		svr.trackConn(conn, false)
	}()
	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if !svr.shutdown.Load() && !errors.Is(err, net.ErrClosed) {
				svr.logger.Debug("connection closed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			}
			return
		}

		if header.MsgType != protocol.MsgTypeRequest {
			continue
		}

		if !svr.startRequest(func() { svr.handleRequest(header, body, conn, writeMu) }) {
			return
		}
	}
}

// startRequest runs fn as an in-flight request unless Shutdown has begun.
// svr.mu orders it against Shutdown, which sets the flag under the same lock
// before waiting on inflight.
func (svr *Server) startRequest(fn func()) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.inflight.Go(fn)
	return true
}

// handleRequest runs one call: decode → middleware → dispatch → encode → write.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	c := codec.GetCodec(codec.CodecType(header.CodecType))
	req := &message.RPCMessage{}

	var reply *message.RPCMessage
	if err := c.Decode(body, req); err != nil {
		reply = message.ErrorReply(nil, message.CodeBadRequest, "decode request: "+err.Error())
	} else {
		reply = svr.handler(context.Background(), req)
	}

	result, err := c.Encode(reply)
	if err != nil {
		svr.logger.Error("encode result", zap.String("channel", req.Channel), zap.String("method", req.Method), zap.Error(err))
		// The caller still gets exactly one reply for its seq
		result, err = c.Encode(message.ErrorReply(req, message.CodeInternal, "encode result: "+err.Error()))
		if err != nil {
			return
		}
	}

	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq,
		BodyLen:   uint32(len(result)),
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := protocol.Encode(conn, &replyHeader, result); err != nil {
		svr.logger.Warn("write result", zap.Uint32("seq", header.Seq), zap.Error(err))
	}
}

// dispatch is the innermost handler: it routes the call to the channel's handler.
func (svr *Server) dispatch(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	call := &channel.MethodCall{Method: req.Method, Arguments: req.Payload}
	res, err := svr.messenger.Dispatch(ctx, req.Channel, call)
	if errors.Is(err, channel.ErrChannelNotFound) {
		return message.ErrorReply(req, message.CodeChannelNotFound, fmt.Sprintf("no handler for channel %q", req.Channel))
	}
	return channel.ToMessage(req, res)
}

func (svr *Server) channelChanged(name string, bound bool) {
	svr.mu.Lock()
	serving := svr.listener != nil
	svr.mu.Unlock()
	if !serving {
		return
	}
	if bound {
		svr.register(name)
	} else {
		svr.deregister(name)
	}
}

func (svr *Server) register(name string) {
	if svr.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svr.registry.Register(ctx, name, svr.instance, svr.ttl); err != nil {
		svr.logger.Error("register channel", zap.String("channel", name), zap.Error(err))
		return
	}
	svr.logger.Info("channel registered", zap.String("channel", name), zap.String("addr", svr.advertiseAddr))
}

func (svr *Server) deregister(name string) {
	if svr.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svr.registry.Deregister(ctx, name, svr.advertiseAddr); err != nil {
		svr.logger.Warn("deregister channel", zap.String("channel", name), zap.Error(err))
	}
}

// Shutdown stops the host gracefully:
//  1. deregister every channel so clients stop routing here
//  2. close the listener
//  3. wait for in-flight calls, up to timeout
//  4. detach plugins, releasing their channel handlers, and close open connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	for _, name := range svr.messenger.Names() {
		svr.deregister(name)
	}

	// Flag first so the Accept error is recognised as intentional and no
	// new request can start once inflight.Wait begins
	svr.mu.Lock()
	svr.shutdown.Store(true)
	listener := svr.listener
	svr.listener = nil
	svr.mu.Unlock()
	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	svr.plugins.DetachAll()

	svr.mu.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.mu.Unlock()
	return err
}
