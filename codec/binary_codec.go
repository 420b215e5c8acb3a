package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"tflite-channel/message"
)

var errShortBuffer = errors.New("BinaryCodec: truncated message")

// ErrFieldTooLong is returned by Encode when a string field does not fit its 16-bit length prefix.
var ErrFieldTooLong = errors.New("BinaryCodec: field too long")

// BinaryCodec lays out an RPCMessage as length-prefixed fields, big-endian:
//
//	channel(2+n) method(2+n) status(1) payload(4+n) errorCode(2+n) error(2+n)
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	// v must be *RPCMessage
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return nil, errors.New("BinaryCodec: v must be *RPCMessage")
	}
	for _, f := range []struct{ name, value string }{
		{"channel", msg.Channel},
		{"method", msg.Method},
		{"error code", msg.ErrorCode},
		{"error", msg.Error},
	} {
		if len(f.value) > math.MaxUint16 {
			return nil, fmt.Errorf("%s is %d bytes: %w", f.name, len(f.value), ErrFieldTooLong)
		}
	}
	total := 2 + len(msg.Channel) + 2 + len(msg.Method) + 1 + 4 + len(msg.Payload) +
		2 + len(msg.ErrorCode) + 2 + len(msg.Error)
	buf := make([]byte, 0, total)

	buf = appendString16(buf, msg.Channel)
	buf = appendString16(buf, msg.Method)
	buf = append(buf, byte(msg.Status))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Payload)))
	buf = append(buf, msg.Payload...)
	buf = appendString16(buf, msg.ErrorCode)
	buf = appendString16(buf, msg.Error)
	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	// v must be *RPCMessage
	msg, ok := v.(*message.RPCMessage)
	if !ok {
		return errors.New("BinaryCodec: v must be *RPCMessage")
	}

	r := reader{data: data}
	msg.Channel = r.string16()
	msg.Method = r.string16()
	msg.Status = message.Status(r.byte())
	msg.Payload = r.bytes32()
	msg.ErrorCode = r.string16()
	msg.Error = r.string16()
	return r.err
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func appendString16(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// reader walks a byte slice and latches the first out-of-bounds read.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errShortBuffer
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) string16() string {
	l := r.take(2)
	if l == nil {
		return ""
	}
	return string(r.take(int(binary.BigEndian.Uint16(l))))
}

func (r *reader) bytes32() []byte {
	l := r.take(4)
	if l == nil {
		return nil
	}
	n := int(binary.BigEndian.Uint32(l))
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
