// Etcd layout, one key per host serving a channel:
//
//	Key:   {prefix}/{channel}/{addr}
//	Value: JSON-encoded ServiceInstance
//
// Registration uses TTL-based leases: if the host crashes, the lease expires
// and the entry is removed, so clients never route to a dead host for long.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const DefaultPrefix = "/tflite-channel"

// EtcdRegistry implements Registry using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	prefix string
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]lease // key → lease held by this process
}

type lease struct {
	id     clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdRegistry connects to the given etcd endpoints. An empty prefix uses DefaultPrefix.
func NewEtcdRegistry(endpoints []string, prefix string, logger *zap.Logger) (*EtcdRegistry, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return &EtcdRegistry{client: c, prefix: prefix, logger: logger, leases: make(map[string]lease)}, nil
}

func (r *EtcdRegistry) channelPrefix(channel string) string {
	return r.prefix + "/" + channel + "/"
}

func (r *EtcdRegistry) key(channel, addr string) string {
	return r.channelPrefix(channel) + addr
}

// Register puts the instance under a lease of ttl seconds and keeps the lease alive
// until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, channel string, instance ServiceInstance, ttl int64) error {
	grant, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := r.key(channel, instance.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(grant.ID)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	// The keepalive outlives the caller's ctx; it stops when the lease is released.
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("key", key))
	}()

	r.mu.Lock()
	old, had := r.leases[key]
	r.leases[key] = lease{id: grant.ID, cancel: cancel}
	r.mu.Unlock()
	if had {
		old.cancel()
	}
	return nil
}

// Deregister removes the instance and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, channel string, addr string) error {
	key := r.key(channel, addr)
	r.mu.Lock()
	l, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		l.cancel()
		if _, err := r.client.Revoke(ctx, l.id); err != nil {
			r.logger.Warn("revoke lease", zap.String("key", key), zap.Error(err))
		}
	}
	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Watch emits the full instance list for channel every time it changes, until ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, channel string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, r.channelPrefix(channel), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch rather than apply individual events
			instances, err := r.Discover(ctx, channel)
			if err != nil {
				r.logger.Warn("discover after watch event", zap.String("channel", channel), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all currently registered instances for channel.
func (r *EtcdRegistry) Discover(ctx context.Context, channel string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, r.channelPrefix(channel), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.channelPrefix(channel), err)
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skip malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}

	return instances, nil
}

// Close stops every keepalive and closes the etcd client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for key, l := range r.leases {
		l.cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}
