package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"tflite-channel/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoMethod(ctx context.Context, call *MethodCall) Result {
	return Success(call.Method)
}

func TestDispatchBoundHandler(t *testing.T) {
	m := NewMessenger()
	m.SetMessageHandler("echo", HandlerFunc(echoMethod))

	res, err := m.Dispatch(context.Background(), "echo", &MethodCall{Method: "ping"})
	require.NoError(t, err)
	assert.Equal(t, Success("ping"), res)
}

func TestDispatchUnknownChannel(t *testing.T) {
	m := NewMessenger()
	_, err := m.Dispatch(context.Background(), "missing", &MethodCall{Method: "ping"})
	assert.True(t, errors.Is(err, ErrChannelNotFound))
}

func TestMethodChannelClearHandler(t *testing.T) {
	m := NewMessenger()
	ch := NewMethodChannel(m, "echo")
	ch.SetMethodCallHandler(HandlerFunc(echoMethod))
	assert.NotNil(t, ch.Handler())
	assert.Equal(t, []string{"echo"}, m.Names())

	ch.SetMethodCallHandler(nil)
	assert.Nil(t, ch.Handler())
	assert.Empty(t, m.Names())

	_, err := m.Dispatch(context.Background(), "echo", &MethodCall{Method: "ping"})
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestOnChangeFiresOnTransitionsOnly(t *testing.T) {
	m := NewMessenger()
	var events []string
	m.OnChange(func(name string, bound bool) {
		if bound {
			events = append(events, "+"+name)
		} else {
			events = append(events, "-"+name)
		}
	})

	m.SetMessageHandler("a", HandlerFunc(echoMethod))
	m.SetMessageHandler("a", HandlerFunc(echoMethod)) // rebind, no event
	m.SetMessageHandler("b", nil)                     // never bound, no event
	m.SetMessageHandler("a", nil)

	assert.Equal(t, []string{"+a", "-a"}, events)
}

// Concurrent bind/unbind of one name must reach the observer as strictly
// alternating transitions that end in the final binding state.
func TestOnChangeOrderedUnderConcurrentRebind(t *testing.T) {
	m := NewMessenger()
	var (
		mu     sync.Mutex
		events []bool
	)
	m.OnChange(func(name string, bound bool) {
		mu.Lock()
		events = append(events, bound)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(bind bool) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if bind {
					m.SetMessageHandler("tflite_flutter", HandlerFunc(echoMethod))
				} else {
					m.SetMessageHandler("tflite_flutter", nil)
				}
			}
		}(i%2 == 0)
	}
	wg.Wait()

	require.NotEmpty(t, events)
	for i, bound := range events {
		require.Equal(t, i%2 == 0, bound, "event %d out of order", i)
	}
	bound := len(m.Names()) == 1
	assert.Equal(t, bound, events[len(events)-1])
}

func TestConcurrentDispatch(t *testing.T) {
	m := NewMessenger()
	m.SetMessageHandler("echo", HandlerFunc(echoMethod))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Dispatch(context.Background(), "echo", &MethodCall{Method: "ping"})
			assert.NoError(t, err)
			assert.Equal(t, KindSuccess, res.Kind)
		}()
	}
	wg.Wait()
}

func TestMethodCallDecode(t *testing.T) {
	var args struct{ Model string }
	call := &MethodCall{Method: "load", Arguments: json.RawMessage(`{"Model":"mobilenet"}`)}
	require.NoError(t, call.Decode(&args))
	assert.Equal(t, "mobilenet", args.Model)

	empty := &MethodCall{Method: "getPlatformVersion"}
	assert.NoError(t, empty.Decode(&args))
}

func TestToMessage(t *testing.T) {
	req := &message.RPCMessage{Channel: "tflite_flutter", Method: "getPlatformVersion"}

	ok := ToMessage(req, Success("Android 14"))
	assert.Equal(t, message.StatusSuccess, ok.Status)
	assert.JSONEq(t, `"Android 14"`, string(ok.Payload))
	assert.Equal(t, "tflite_flutter", ok.Channel)

	ni := ToMessage(req, NotImplemented())
	assert.Equal(t, message.StatusNotImplemented, ni.Status)
	assert.Empty(t, ni.Payload)

	failed := ToMessage(req, Error(message.CodeUnavailable, "no release"))
	assert.Equal(t, message.StatusError, failed.Status)
	assert.Equal(t, message.CodeUnavailable, failed.ErrorCode)
	assert.Equal(t, "no release", failed.Error)

	bad := ToMessage(req, Success(make(chan int)))
	assert.Equal(t, message.CodeInternal, bad.ErrorCode)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "Success(Android 14)", Success("Android 14").String())
	assert.Equal(t, "NotImplemented", NotImplemented().String())
	assert.Equal(t, "Error(UNAVAILABLE: x)", Error("UNAVAILABLE", "x").String())
}
