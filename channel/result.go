package channel

import (
	"encoding/json"
	"fmt"
	"tflite-channel/message"
)

// Kind selects which branch of a Result is populated.
type Kind int

const (
	KindSuccess Kind = iota
	KindNotImplemented
	KindError
)

// Result is the single reply a handler produces for a MethodCall.
// Build one with Success, NotImplemented or Error.
type Result struct {
	Kind    Kind
	Value   any
	Code    string
	Message string
}

func Success(v any) Result {
	return Result{Kind: KindSuccess, Value: v}
}

func NotImplemented() Result {
	return Result{Kind: KindNotImplemented}
}

func Error(code, msg string) Result {
	return Result{Kind: KindError, Code: code, Message: msg}
}

func (r Result) String() string {
	switch r.Kind {
	case KindSuccess:
		return fmt.Sprintf("Success(%v)", r.Value)
	case KindNotImplemented:
		return "NotImplemented"
	default:
		return fmt.Sprintf("Error(%s: %s)", r.Code, r.Message)
	}
}

// MethodCall is one inbound request on a channel. Arguments are left encoded;
// handlers that need them decode with Decode.
type MethodCall struct {
	Method    string
	Arguments json.RawMessage
}

// Decode unmarshals the call arguments into v. Empty arguments leave v untouched.
func (c *MethodCall) Decode(v any) error {
	if len(c.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(c.Arguments, v)
}

// ToMessage encodes r as the response envelope for req.
func ToMessage(req *message.RPCMessage, r Result) *message.RPCMessage {
	reply := &message.RPCMessage{Channel: req.Channel, Method: req.Method}
	switch r.Kind {
	case KindSuccess:
		payload, err := json.Marshal(r.Value)
		if err != nil {
			return message.ErrorReply(req, message.CodeInternal, "encode result: "+err.Error())
		}
		reply.Status = message.StatusSuccess
		reply.Payload = payload
	case KindNotImplemented:
		reply.Status = message.StatusNotImplemented
	default:
		reply.Status = message.StatusError
		reply.ErrorCode = r.Code
		reply.Error = r.Message
	}
	return reply
}
