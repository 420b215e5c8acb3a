// Package platforminfo is the tflite_flutter plugin: it answers getPlatformVersion
// with "<OS name> <OS release>" and reports every other method as not implemented.
package platforminfo

import (
	"context"
	"fmt"
	"tflite-channel/channel"
	"tflite-channel/message"
	"tflite-channel/platform"
	"tflite-channel/plugin"

	"go.uber.org/zap"
)

const (
	ChannelName              = "tflite_flutter"
	MethodGetPlatformVersion = "getPlatformVersion"
)

type Plugin struct {
	info    platform.Accessor
	channel *channel.MethodChannel
	logger  *zap.Logger
}

func New(info platform.Accessor) *Plugin {
	return &Plugin{info: info, logger: zap.NewNop()}
}

func (p *Plugin) Name() string {
	return ChannelName
}

func (p *Plugin) OnAttachedToEngine(b *plugin.Binding) {
	if b.Logger != nil {
		p.logger = b.Logger.Named(ChannelName)
	}
	p.channel = channel.NewMethodChannel(b.Messenger, ChannelName)
	p.channel.SetMethodCallHandler(p)
}

func (p *Plugin) OnDetachedFromEngine(b *plugin.Binding) {
	if p.channel == nil {
		return
	}
	p.channel.SetMethodCallHandler(nil)
	p.channel = nil
}

// Channel returns the bound channel, or nil while detached.
func (p *Plugin) Channel() *channel.MethodChannel {
	return p.channel
}

func (p *Plugin) OnMethodCall(ctx context.Context, call *channel.MethodCall) channel.Result {
	if call.Method != MethodGetPlatformVersion {
		return channel.NotImplemented()
	}
	info, err := p.info.PlatformInfo(ctx)
	if err != nil {
		p.logger.Warn("platform release unavailable", zap.Error(err))
		return channel.Error(message.CodeUnavailable, fmt.Sprintf("platform release unavailable: %v", err))
	}
	if info.Release == "" {
		return channel.Error(message.CodeUnavailable, "platform release unavailable: empty release")
	}
	return channel.Success(info.String())
}

// RegisterWith is the registration entry point older hosts look up by name.
// Attachment goes through OnAttachedToEngine; this does nothing.
func RegisterWith(registrar any) {}
