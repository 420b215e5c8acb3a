package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
)

func frame(t *testing.T, h Header, body []byte) []byte {
	t.Helper()
	h.BodyLen = uint32(len(body))
	var buf bytes.Buffer
	if err := Encode(&buf, &h, body); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	large := make([]byte, 1<<20)
	for i := range large {
		large[i] = byte(i)
	}

	tests := []struct {
		name   string
		header Header
		body   []byte
	}{
		{"json request", Header{CodecType: CodecTypeJSON, MsgType: MsgTypeRequest, Seq: 1}, []byte(`{"Channel":"tflite_flutter","Method":"getPlatformVersion"}`)},
		{"binary response", Header{CodecType: CodecTypeBinary, MsgType: MsgTypeResponse, Seq: 1 << 31}, []byte{0, 1, 2, 3}},
		{"heartbeat", Header{MsgType: MsgTypeHeartbeat, Seq: 7}, nil},
		{"1MiB body", Header{CodecType: CodecTypeBinary, MsgType: MsgTypeRequest, Seq: 999}, large},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := frame(t, tt.header, tt.body)
			if len(data) != HeaderSize+len(tt.body) {
				t.Fatalf("frame size: got %d, want %d", len(data), HeaderSize+len(tt.body))
			}

			h, body, err := Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			want := tt.header
			want.BodyLen = uint32(len(tt.body))
			if *h != want {
				t.Errorf("header: got %+v, want %+v", *h, want)
			}
			if !bytes.Equal(body, tt.body) {
				t.Errorf("body mismatch (%d vs %d bytes)", len(body), len(tt.body))
			}
		})
	}
}

// Frames written back to back on one stream must come out one at a time.
func TestDecodeConsecutiveFrames(t *testing.T) {
	var stream bytes.Buffer
	for seq := uint32(1); seq <= 3; seq++ {
		stream.Write(frame(t, Header{MsgType: MsgTypeResponse, Seq: seq}, []byte(strings.Repeat("x", int(seq)))))
	}

	for seq := uint32(1); seq <= 3; seq++ {
		h, body, err := Decode(&stream)
		if err != nil {
			t.Fatalf("frame %d: %v", seq, err)
		}
		if h.Seq != seq || len(body) != int(seq) {
			t.Errorf("frame %d: got seq %d with %d bytes", seq, h.Seq, len(body))
		}
	}
	if _, _, err := Decode(&stream); !errors.Is(err, io.EOF) {
		t.Errorf("drained stream: got %v, want EOF", err)
	}
}

func TestEncodeBodyLenMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeRequest, BodyLen: 3}, []byte("hello")); err == nil {
		t.Fatal("expected error for mismatched body length")
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written on error, got %d bytes", buf.Len())
	}
}

func TestDecodeRejectsHeader(t *testing.T) {
	valid := func() []byte {
		return []byte{MagicNumber, MagicByte2, MagicByte3, Version, CodecTypeJSON, byte(MsgTypeRequest), 0, 0, 0, 1, 0, 0, 0, 0}
	}

	tests := []struct {
		name   string
		mutate func(h []byte)
		want   string
	}{
		{"http client", func(h []byte) { copy(h, "GET") }, "invalid magic number"},
		{"future version", func(h []byte) { h[3] = 0xFF }, "unsupported version"},
		{"unknown codec", func(h []byte) { h[4] = 9 }, "unsupported codec type"},
		{"unknown message type", func(h []byte) { h[5] = 7 }, "unsupported message type"},
		{"oversized body", func(h []byte) { binary.BigEndian.PutUint32(h[10:14], MaxBodyLen+1) }, "body too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := valid()
			tt.mutate(h)
			_, _, err := Decode(bytes.NewReader(h))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestDecodeTruncatedBody(t *testing.T) {
	data := frame(t, Header{MsgType: MsgTypeRequest, Seq: 1}, []byte("getPlatformVersion"))

	_, _, err := Decode(bytes.NewReader(data[:len(data)-4]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
	}
}
