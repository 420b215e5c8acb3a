// Package transport implements the client side of a host connection, with multiplexing and heartbeat.
//
// Many concurrent calls share one TCP connection. Each call gets a sequence ID;
// a background goroutine (recvLoop) reads results and routes each one to the caller
// waiting on that ID.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ Host
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── result(seq=2) → pending[2] → goroutine-2 wakes up
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"tflite-channel/codec"
	"tflite-channel/message"
	"tflite-channel/protocol"
	"time"
)

var ErrClosed = errors.New("transport closed")

const DefaultHeartbeat = 30 * time.Second

// ClientTransport manages a single multiplexed TCP connection.
type ClientTransport struct {
	conn    net.Conn
	codec   codec.Codec
	seq     uint32     // guarded by sending
	pending sync.Map   // map[uint32]chan *message.RPCMessage
	sending sync.Mutex // serializes frame writes; req A's header + req B's body = corruption
	closed  bool       // guarded by sending
	broken  atomic.Bool
	done    chan struct{}
}

// NewClientTransport starts recvLoop and, for heartbeat > 0, heartbeatLoop.
func NewClientTransport(conn net.Conn, codecType codec.CodecType, heartbeat time.Duration) *ClientTransport {
	t := &ClientTransport{
		conn:  conn,
		codec: codec.GetCodec(codecType),
		done:  make(chan struct{}),
	}
	go t.recvLoop()
	if heartbeat > 0 {
		go t.heartbeatLoop(heartbeat)
	}
	return t
}

// Send encodes and writes req, returning its sequence number and a channel that
// receives exactly one result.
func (t *ClientTransport) Send(req *message.RPCMessage) (uint32, <-chan *message.RPCMessage, error) {
	body, err := t.codec.Encode(req)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}

	t.sending.Lock()
	defer t.sending.Unlock()
	if t.closed {
		return 0, nil, ErrClosed
	}

	t.seq++
	seq := t.seq
	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
		BodyLen:   uint32(len(body)),
	}

	// Register before writing so recvLoop can never see a result without a waiter
	respChan := make(chan *message.RPCMessage, 1)
	t.pending.Store(seq, respChan)

	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}
	return seq, respChan, nil
}

// Cancel forgets a pending call; a late result for seq is dropped.
func (t *ClientTransport) Cancel(seq uint32) {
	t.pending.Delete(seq)
}

func (t *ClientTransport) recvLoop() {
	defer close(t.done)
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.fail(err)
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		reply := &message.RPCMessage{}
		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		if err := cdc.Decode(body, reply); err != nil {
			reply = &message.RPCMessage{Status: message.StatusError, ErrorCode: message.CodeBadRequest, Error: "decode result: " + err.Error()}
		}

		if ch, ok := t.pending.LoadAndDelete(header.Seq); ok {
			ch.(chan *message.RPCMessage) <- reply
		}
	}
}

// fail marks the transport closed and answers every pending call with a connection error.
func (t *ClientTransport) fail(err error) {
	t.sending.Lock()
	t.closed = true
	t.sending.Unlock()
	t.broken.Store(true)

	t.pending.Range(func(key, value any) bool {
		t.pending.Delete(key)
		value.(chan *message.RPCMessage) <- &message.RPCMessage{
			Status:    message.StatusError,
			ErrorCode: message.CodeConnection,
			Error:     err.Error(),
		}
		return true
	})
}

// Broken reports whether the connection has failed or been closed.
func (t *ClientTransport) Broken() bool {
	return t.broken.Load()
}

// Close closes the connection and waits for recvLoop to drain pending calls.
func (t *ClientTransport) Close() error {
	err := t.conn.Close()
	<-t.done
	return err
}

// heartbeatLoop keeps idle connections alive with empty heartbeat frames.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	header := &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		t.sending.Lock()
		closed := t.closed
		var err error
		if !closed {
			header.CodecType = byte(t.codec.Type())
			err = protocol.Encode(t.conn, header, nil)
		}
		t.sending.Unlock()
		if closed || err != nil {
			return
		}
	}
}
