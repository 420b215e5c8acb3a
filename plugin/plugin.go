// Package plugin manages the attach/detach lifecycle of plugins hosted by an engine.
package plugin

import (
	"fmt"
	"sync"
	"tflite-channel/channel"

	"go.uber.org/zap"
)

// Binding is what a plugin receives when it is attached to an engine.
type Binding struct {
	Messenger *channel.Messenger
	Logger    *zap.Logger
}

// Plugin is attached once and detached once. Detach must release every
// channel handler acquired during attach.
type Plugin interface {
	Name() string
	OnAttachedToEngine(b *Binding)
	OnDetachedFromEngine(b *Binding)
}

// Host owns the set of attached plugins.
type Host struct {
	binding *Binding

	mu      sync.Mutex
	order   []string
	plugins map[string]Plugin
}

func NewHost(messenger *channel.Messenger, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		binding: &Binding{Messenger: messenger, Logger: logger},
		plugins: make(map[string]Plugin),
	}
}

// Add attaches p. A plugin name may be attached only once.
func (h *Host) Add(p Plugin) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.plugins[p.Name()]; ok {
		return fmt.Errorf("plugin %q already attached", p.Name())
	}
	h.plugins[p.Name()] = p
	h.order = append(h.order, p.Name())
	p.OnAttachedToEngine(h.binding)
	h.binding.Logger.Info("plugin attached", zap.String("plugin", p.Name()))
	return nil
}

// Remove detaches the named plugin. It reports whether the plugin was attached.
func (h *Host) Remove(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.plugins[name]
	if !ok {
		return false
	}
	h.detach(p)
	for i, n := range h.order {
		if n == name {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return true
}

// DetachAll detaches every plugin in reverse attach order.
func (h *Host) DetachAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.order) - 1; i >= 0; i-- {
		h.detach(h.plugins[h.order[i]])
	}
	h.order = nil
}

func (h *Host) detach(p Plugin) {
	delete(h.plugins, p.Name())
	p.OnDetachedFromEngine(h.binding)
	h.binding.Logger.Info("plugin detached", zap.String("plugin", p.Name()))
}

// Attached returns plugin names in attach order.
func (h *Host) Attached() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}
