package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"
	"tflite-channel/registry"
)

// ConsistentHashBalancer maps keys to instances on a hash ring with virtual nodes,
// so the same channel keeps landing on the same host until the host set changes.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu        sync.Mutex
	signature string // addresses the ring was built from
	ring      []uint32
	nodes     map[uint32]registry.ServiceInstance
}

// NewConsistentHashBalancer uses 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]registry.ServiceInstance),
	}
}

func signature(instances []registry.ServiceInstance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}

// rebuild must be called with mu held.
func (b *ConsistentHashBalancer) rebuild(instances []registry.ServiceInstance) {
	b.ring = b.ring[:0]
	clear(b.nodes)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = inst
		}
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// Pick rebuilds the ring when the instance set differs from the last call,
// then walks clockwise from hash(key) to the first virtual node.
func (b *ConsistentHashBalancer) Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if sig := signature(instances); sig != b.signature {
		b.rebuild(instances)
		b.signature = sig
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
