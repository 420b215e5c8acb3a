// Package loadbalance picks which host serves a call when several advertise the same channel.
//
//   - RoundRobin:      equal-capacity hosts
//   - WeightedRandom:  hosts with different capacity
//   - ConsistentHash:  pin each channel to one host while the host set is stable
package loadbalance

import (
	"errors"
	"fmt"
	"tflite-channel/registry"
)

var ErrNoInstances = errors.New("no instances available")

// Balancer is called before every call. key is the channel name; strategies
// that don't need affinity ignore it. Implementations must be goroutine-safe.
type Balancer interface {
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
