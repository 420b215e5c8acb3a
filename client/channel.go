package client

import "context"

// Channel is a client-side method channel, the counterpart of channel.MethodChannel on the host.
type Channel struct {
	client *Client
	name   string
}

func (ch *Channel) Name() string {
	return ch.name
}

func (ch *Channel) InvokeMethod(ctx context.Context, method string, args any, reply any) error {
	return ch.client.Invoke(ctx, ch.name, method, args, reply)
}

// InvokeString calls a method whose result is a string, e.g. getPlatformVersion.
func (ch *Channel) InvokeString(ctx context.Context, method string) (string, error) {
	var s string
	err := ch.InvokeMethod(ctx, method, nil, &s)
	return s, err
}
