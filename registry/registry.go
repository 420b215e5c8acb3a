// Package registry lets engine hosts advertise the channels they serve and lets
// clients discover which hosts serve a channel.
package registry

import "context"

type ServiceInstance struct {
	Addr     string
	Weight   int    // Weight for load balancing
	Version  string // Host build version
	Platform string // e.g. "Android 14", informational
}

type Registry interface {
	Register(ctx context.Context, channel string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, channel string, addr string) error
	Discover(ctx context.Context, channel string) ([]ServiceInstance, error)
	Watch(ctx context.Context, channel string) <-chan []ServiceInstance
}
