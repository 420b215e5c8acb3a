// Package message defines the envelope exchanged between a channel client and the engine host.
//
// RPCMessage is the "envelope" for every method-channel call. It gets serialized by the codec
// layer and wrapped in a protocol frame for transmission over TCP.
package message

// Status tells the caller which branch of the result a response carries.
type Status byte

const (
	StatusSuccess        Status = 0 // Payload holds the JSON-encoded value
	StatusNotImplemented Status = 1 // The handler does not know the method
	StatusError          Status = 2 // ErrorCode and Error describe the failure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotImplemented:
		return "not_implemented"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// RPCMessage carries the data for a single method call or its result.
//
//   - On request:  Channel and Method are set, Payload contains the JSON arguments.
//   - On response: Status selects the branch; Payload contains the JSON value on success,
//     ErrorCode/Error are set when Status is StatusError.
type RPCMessage struct {
	Channel   string // Channel name, e.g. "tflite_flutter"
	Method    string // Method name, e.g. "getPlatformVersion"
	Status    Status
	ErrorCode string // Machine-readable code, e.g. "UNAVAILABLE"
	Error     string // Human-readable message
	Payload   []byte
}

// ErrorReply builds an error response for the given request.
func ErrorReply(req *RPCMessage, code, msg string) *RPCMessage {
	reply := &RPCMessage{Status: StatusError, ErrorCode: code, Error: msg}
	if req != nil {
		reply.Channel = req.Channel
		reply.Method = req.Method
	}
	return reply
}

// Host-side error codes.
const (
	CodeChannelNotFound = "CHANNEL_NOT_FOUND"
	CodeBadRequest      = "BAD_REQUEST"
	CodeTimeout         = "TIMEOUT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternal        = "INTERNAL"
	CodeUnavailable     = "UNAVAILABLE"
	CodeConnection      = "CONNECTION"
)
