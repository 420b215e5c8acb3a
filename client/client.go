// Package client calls methods on channels served by remote engine hosts.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"tflite-channel/codec"
	"tflite-channel/loadbalance"
	"tflite-channel/message"
	"tflite-channel/middleware"
	"tflite-channel/registry"
	"tflite-channel/transport"
	"time"

	"go.uber.org/zap"
)

// ErrNotImplemented is returned when the channel handler does not know the method.
var ErrNotImplemented = errors.New("method not implemented")

// MethodError is an error result reported by the host or the channel handler.
type MethodError struct {
	Code    string
	Message string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type Client struct {
	resolver   *resolver
	balancer   loadbalance.Balancer
	codecType  codec.CodecType
	poolSize   int
	heartbeat  time.Duration
	logger     *zap.Logger
	dialer     net.Dialer
	middleware []middleware.Middleware
	handler    middleware.HandlerFunc

	mu         sync.Mutex
	transports map[string]chan *transport.ClientTransport // per host; nil slots are dialed lazily
}

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) { c.heartbeat = d }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialer.Timeout = d }
}

// WithMiddleware wraps every outgoing call, first given runs outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) { c.middleware = append(c.middleware, mws...) }
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, codecType codec.CodecType, poolSize int, opts ...Option) *Client {
	if poolSize <= 0 {
		poolSize = 1
	}
	c := &Client{
		balancer:   bal,
		codecType:  codecType,
		poolSize:   poolSize,
		heartbeat:  transport.DefaultHeartbeat,
		logger:     zap.NewNop(),
		transports: make(map[string]chan *transport.ClientTransport),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = newResolver(reg, c.logger)
	c.handler = middleware.Chain(c.middleware...)(c.send)
	return c
}

func (c *Client) pool(addr string) chan *transport.ClientTransport {
	c.mu.Lock()
	defer c.mu.Unlock()
	pool, ok := c.transports[addr]
	if !ok {
		pool = make(chan *transport.ClientTransport, c.poolSize)
		for i := 0; i < c.poolSize; i++ {
			pool <- nil
		}
		c.transports[addr] = pool
	}
	return pool
}

// getTransport takes a slot from the host's pool, dialing if the slot is empty or broken.
// The caller must return the slot to the same pool.
func (c *Client) getTransport(ctx context.Context, addr string) (*transport.ClientTransport, chan *transport.ClientTransport, error) {
	pool := c.pool(addr)
	var t *transport.ClientTransport
	select {
	case t = <-pool:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	if t != nil && !t.Broken() {
		return t, pool, nil
	}
	if t != nil {
		t.Close()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		pool <- nil
		return nil, nil, err
	}
	c.logger.Debug("dialed host", zap.String("addr", addr))
	return transport.NewClientTransport(conn, c.codecType, c.heartbeat), pool, nil
}

// send is the innermost handler: discover, pick, send, wait.
func (c *Client) send(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
	instances, err := c.resolver.Resolve(ctx, req.Channel)
	if err != nil {
		return message.ErrorReply(req, message.CodeConnection, "discover: "+err.Error())
	}
	instance, err := c.balancer.Pick(req.Channel, instances)
	if errors.Is(err, loadbalance.ErrNoInstances) {
		return message.ErrorReply(req, message.CodeChannelNotFound, fmt.Sprintf("no host serves channel %q", req.Channel))
	}
	if err != nil {
		return message.ErrorReply(req, message.CodeInternal, err.Error())
	}

	t, pool, err := c.getTransport(ctx, instance.Addr)
	if err != nil {
		return message.ErrorReply(req, message.CodeConnection, err.Error())
	}
	defer func() { pool <- t }()

	seq, ch, err := t.Send(req)
	if err != nil {
		return message.ErrorReply(req, message.CodeConnection, err.Error())
	}

	select {
	case reply := <-ch:
		return reply
	case <-ctx.Done():
		t.Cancel(seq)
		return message.ErrorReply(req, message.CodeTimeout, ctx.Err().Error())
	}
}

// Invoke calls method on the named channel with args and decodes a successful
// result into reply (which may be nil).
func (c *Client) Invoke(ctx context.Context, channelName, method string, args any, reply any) error {
	req := &message.RPCMessage{Channel: channelName, Method: method}
	if args != nil {
		payload, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encode arguments: %w", err)
		}
		req.Payload = payload
	}

	resp := c.handler(ctx, req)
	switch resp.Status {
	case message.StatusSuccess:
		if reply == nil || len(resp.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Payload, reply); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return nil
	case message.StatusNotImplemented:
		return fmt.Errorf("%s.%s: %w", channelName, method, ErrNotImplemented)
	default:
		return &MethodError{Code: resp.ErrorCode, Message: resp.Error}
	}
}

// Channel returns a handle bound to one channel name.
func (c *Client) Channel(name string) *Channel {
	return &Channel{client: c, name: name}
}

// Close stops registry watches and closes every pooled connection. Calls still
// holding a transport finish first.
func (c *Client) Close() error {
	c.resolver.Close()

	c.mu.Lock()
	pools := c.transports
	c.transports = make(map[string]chan *transport.ClientTransport)
	c.mu.Unlock()

	var errs []error
	for _, pool := range pools {
		for i := 0; i < cap(pool); i++ {
			if t := <-pool; t != nil {
				if err := t.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}
