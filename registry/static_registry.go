package registry

import (
	"context"
	"sync"
)

// StaticRegistry serves a fixed address list, for hosts reached without etcd.
// Instances registered at runtime are kept in memory.
type StaticRegistry struct {
	mu        sync.RWMutex
	fixed     []ServiceInstance
	instances map[string][]ServiceInstance
}

// NewStaticRegistry returns a registry in which every channel resolves to addrs
// in addition to anything registered later.
func NewStaticRegistry(addrs ...string) *StaticRegistry {
	r := &StaticRegistry{instances: make(map[string][]ServiceInstance)}
	for _, addr := range addrs {
		r.fixed = append(r.fixed, ServiceInstance{Addr: addr, Weight: 1})
	}
	return r
}

func (r *StaticRegistry) Register(ctx context.Context, channel string, instance ServiceInstance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	insts := r.instances[channel]
	for i, inst := range insts {
		if inst.Addr == instance.Addr {
			insts[i] = instance
			return nil
		}
	}
	r.instances[channel] = append(insts, instance)
	return nil
}

func (r *StaticRegistry) Deregister(ctx context.Context, channel string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	insts := r.instances[channel]
	for i, inst := range insts {
		if inst.Addr == addr {
			r.instances[channel] = append(insts[:i:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (r *StaticRegistry) Discover(ctx context.Context, channel string) ([]ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceInstance, 0, len(r.fixed)+len(r.instances[channel]))
	out = append(out, r.fixed...)
	return append(out, r.instances[channel]...), nil
}

// Watch emits the current list once; a static registry never changes on its own.
func (r *StaticRegistry) Watch(ctx context.Context, channel string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	instances, _ := r.Discover(ctx, channel)
	ch <- instances
	close(ch)
	return ch
}
