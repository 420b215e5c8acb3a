package loadbalance

import (
	"math/rand/v2"
	"tflite-channel/registry"
)

// WeightedRandomBalancer picks proportionally to Weight. Non-positive weights count as 1.
type WeightedRandomBalancer struct{}

func weight(inst registry.ServiceInstance) int {
	if inst.Weight <= 0 {
		return 1
	}
	return inst.Weight
}

func (b *WeightedRandomBalancer) Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += weight(v)
	}

	r := rand.IntN(totalWeight)
	for i := range instances {
		r -= weight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
