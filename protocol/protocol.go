// Package protocol implements the binary frame protocol spoken between channel clients
// and the engine host.
//
// It solves TCP's sticky packet problem by using a fixed-size 14-byte header
// followed by a variable-length body. The receiver reads the header first to
// determine the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ tfc  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "tfc" (tflite channel).
// Rejects non-protocol connections (e.g., HTTP clients hitting the wrong port).
const (
	MagicNumber byte   = 0x74 // 't'
	MagicByte2  byte   = 0x66 // 'f'
	MagicByte3  byte   = 0x63 // 'c'
	Version     byte   = 0x01
	HeaderSize  int    = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)
	MaxBodyLen  uint32 = 16 << 20
)

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Host method call
	MsgTypeResponse  MsgType = 1 // Host → Client result
	MsgTypeHeartbeat MsgType = 2 // KeepAlive probe (no body)
)

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// Header represents the fixed 14-byte frame header.
// It carries metadata needed to decode the following body correctly.
type Header struct {
	CodecType byte    // Serialization format: 0=JSON, 1=Binary
	MsgType   MsgType // Request, Response, or Heartbeat
	Seq       uint32  // Echoed by the host so the client can match result to call
	BodyLen   uint32  // Body length in bytes
}

// Encode writes a complete frame (header + body) to w in a single Write call.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames from different calls will interleave and corrupt the stream.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) != h.BodyLen {
		return fmt.Errorf("body length %d does not match header %d", len(body), h.BodyLen)
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	// Network byte order
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)
	buf = append(buf, body...)

	_, err := w.Write(buf)
	return err
}

// Decode reads one frame from r, validating every header byte before it trusts BodyLen.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}

	msgType := MsgType(headerBuf[5])
	if msgType > MsgTypeHeartbeat {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	seq := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])

	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("body too large: %d bytes", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   msgType,
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
