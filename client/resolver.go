package client

import (
	"context"
	"sync"
	"tflite-channel/registry"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// resolver caches the hosts serving each channel. The first lookup of a
// channel starts a registry Watch and falls back to Discover; later lookups
// are answered from the cache the Watch keeps current. When a Watch ends the
// entry is dropped and the next lookup starts over.
type resolver struct {
	registry registry.Registry
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	watchers conc.WaitGroup

	mu       sync.Mutex
	cached   map[string][]registry.ServiceInstance
	watching map[string]bool
}

func newResolver(reg registry.Registry, logger *zap.Logger) *resolver {
	ctx, cancel := context.WithCancel(context.Background())
	return &resolver{
		registry: reg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		cached:   make(map[string][]registry.ServiceInstance),
		watching: make(map[string]bool),
	}
}

// Resolve returns the instances currently serving channel.
func (r *resolver) Resolve(ctx context.Context, channel string) ([]registry.ServiceInstance, error) {
	r.mu.Lock()
	instances, ok := r.cached[channel]
	r.mu.Unlock()
	if ok {
		return instances, nil
	}

	// Watch before Discover so a change between the two is not lost
	r.watch(channel)
	instances, err := r.registry.Discover(ctx, channel)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, ok := r.cached[channel]; !ok && r.watching[channel] {
		r.cached[channel] = instances
	}
	r.mu.Unlock()
	return instances, nil
}

func (r *resolver) watch(channel string) {
	// Held across Go so Close cannot start waiting between the check and the Go
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watching[channel] || r.ctx.Err() != nil {
		return
	}
	r.watching[channel] = true

	updates := r.registry.Watch(r.ctx, channel)
	r.watchers.Go(func() {
		for instances := range updates {
			r.mu.Lock()
			r.cached[channel] = instances
			r.mu.Unlock()
			r.logger.Debug("channel hosts changed", zap.String("channel", channel), zap.Int("hosts", len(instances)))
		}
		r.mu.Lock()
		delete(r.cached, channel)
		delete(r.watching, channel)
		r.mu.Unlock()
	})
}

// Close stops every watch and waits for them to finish.
func (r *resolver) Close() {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.watchers.Wait()
}
