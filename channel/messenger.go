// Package channel implements the host side of named method channels.
//
// A Messenger routes calls by channel name to whatever handler is currently bound.
// Plugins bind through a MethodChannel and unbind by setting a nil handler.
package channel

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrChannelNotFound = errors.New("channel: no handler bound")

// Handler answers a method call with exactly one Result.
type Handler interface {
	OnMethodCall(ctx context.Context, call *MethodCall) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, call *MethodCall) Result

func (f HandlerFunc) OnMethodCall(ctx context.Context, call *MethodCall) Result {
	return f(ctx, call)
}

// Messenger is safe for concurrent use.
type Messenger struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	onChange func(name string, bound bool)

	// notifyMu serializes binding changes with their OnChange callbacks.
	notifyMu sync.Mutex
}

func NewMessenger() *Messenger {
	return &Messenger{handlers: make(map[string]Handler)}
}

// OnChange installs a callback invoked after a channel is bound or unbound.
// Callbacks are delivered one at a time, in binding order, and must not call
// SetMessageHandler.
func (m *Messenger) OnChange(fn func(name string, bound bool)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// SetMessageHandler binds h to name. A nil handler removes the binding.
func (m *Messenger) SetMessageHandler(name string, h Handler) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	_, existed := m.handlers[name]
	if h == nil {
		delete(m.handlers, name)
	} else {
		m.handlers[name] = h
	}
	fn := m.onChange
	m.mu.Unlock()

	if fn == nil {
		return
	}
	if h != nil && !existed {
		fn(name, true)
	} else if h == nil && existed {
		fn(name, false)
	}
}

func (m *Messenger) handler(name string) Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handlers[name]
}

// Dispatch delivers call to the handler bound to name.
func (m *Messenger) Dispatch(ctx context.Context, name string, call *MethodCall) (Result, error) {
	h := m.handler(name)
	if h == nil {
		return Result{}, ErrChannelNotFound
	}
	return h.OnMethodCall(ctx, call), nil
}

// Names returns the bound channel names in sorted order.
func (m *Messenger) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}
