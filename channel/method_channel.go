package channel

import "sync"

// MethodChannel is a plugin's handle on one named channel of a Messenger.
type MethodChannel struct {
	messenger *Messenger
	name      string

	mu      sync.Mutex
	handler Handler
}

func NewMethodChannel(messenger *Messenger, name string) *MethodChannel {
	return &MethodChannel{messenger: messenger, name: name}
}

func (c *MethodChannel) Name() string {
	return c.name
}

// SetMethodCallHandler binds h to the channel; nil clears it.
func (c *MethodChannel) SetMethodCallHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
	c.messenger.SetMessageHandler(c.name, h)
}

// Handler returns the currently bound handler, or nil.
func (c *MethodChannel) Handler() Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}
