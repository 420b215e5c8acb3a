package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a running etcd; set ETCD_ENDPOINTS=localhost:2379 to enable.
func newEtcdRegistry(t *testing.T) *EtcdRegistry {
	endpoints := os.Getenv("ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("ETCD_ENDPOINTS not set")
	}
	reg, err := NewEtcdRegistry(strings.Split(endpoints, ","), "/tflite-channel-test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestRegisterAndDiscover(t *testing.T) {
	reg := newEtcdRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0", Platform: "Android 14"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0", Platform: "Android 13"}

	require.NoError(t, reg.Register(ctx, "tflite_flutter", inst1, 10))
	require.NoError(t, reg.Register(ctx, "tflite_flutter", inst2, 10))

	instances, err := reg.Discover(ctx, "tflite_flutter")
	require.NoError(t, err)
	assert.ElementsMatch(t, []ServiceInstance{inst1, inst2}, instances)

	require.NoError(t, reg.Deregister(ctx, "tflite_flutter", inst1.Addr))

	instances, err = reg.Discover(ctx, "tflite_flutter")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, inst2.Addr, instances[0].Addr)

	reg.Deregister(ctx, "tflite_flutter", inst2.Addr)
}

func TestWatch(t *testing.T) {
	reg := newEtcdRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := reg.Watch(ctx, "watched")
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, reg.Register(ctx, "watched", ServiceInstance{Addr: "127.0.0.1:8003"}, 10))

	select {
	case instances := <-updates:
		require.Len(t, instances, 1)
		assert.Equal(t, "127.0.0.1:8003", instances[0].Addr)
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
	reg.Deregister(ctx, "watched", "127.0.0.1:8003")
}
