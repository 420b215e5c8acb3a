package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"tflite-channel/client"
	"tflite-channel/codec"
	"tflite-channel/loadbalance"
	"tflite-channel/middleware"
	"tflite-channel/platforminfo"
	"tflite-channel/registry"

	"github.com/spf13/cobra"
)

type callFlags struct {
	addrs   []string
	channel string
	method  string
	args    string
	codec   string
}

func newCallCmd(flags *globalFlags) *cobra.Command {
	cf := &callFlags{}
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Invoke a method on a channel and print the result as JSON",
		Example: "  channeld call --addr 127.0.0.1:7420 --method getPlatformVersion\n" +
			"  channeld call -c channeld.toml --channel tflite_flutter --method getPlatformVersion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cf.codec != "" {
				cfg.Client.Codec = cf.codec
			}

			codecType, err := codec.ParseCodecType(cfg.Client.Codec)
			if err != nil {
				return err
			}
			bal, err := loadbalance.New(cfg.Client.Balancer)
			if err != nil {
				return err
			}

			var reg registry.Registry
			switch {
			case len(cf.addrs) > 0:
				reg = registry.NewStaticRegistry(cf.addrs...)
			case len(cfg.Registry.Endpoints) > 0:
				etcdReg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.Prefix, logger)
				if err != nil {
					return err
				}
				defer etcdReg.Close()
				reg = etcdReg
			default:
				reg = registry.NewStaticRegistry(cfg.Server.Listen)
			}

			var args any
			if cf.args != "" {
				var raw json.RawMessage
				if err := json.Unmarshal([]byte(cf.args), &raw); err != nil {
					return fmt.Errorf("--args is not valid JSON: %w", err)
				}
				args = raw
			}

			cli := client.NewClient(reg, bal, codecType, cfg.Client.PoolSize,
				client.WithLogger(logger),
				client.WithMiddleware(middleware.RetryMiddleware(cfg.Client.Retries, cfg.Client.RetryDelay.Duration, logger)))
			defer cli.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Client.Timeout.Duration)
			defer cancel()

			var reply json.RawMessage
			err = cli.Invoke(ctx, cf.channel, cf.method, args, &reply)
			if errors.Is(err, client.ErrNotImplemented) {
				fmt.Fprintln(cmd.OutOrStdout(), "not implemented")
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(reply))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&cf.addrs, "addr", nil, "host address(es), bypassing the registry")
	cmd.Flags().StringVar(&cf.channel, "channel", platforminfo.ChannelName, "channel name")
	cmd.Flags().StringVar(&cf.method, "method", platforminfo.MethodGetPlatformVersion, "method name")
	cmd.Flags().StringVar(&cf.args, "args", "", "JSON arguments")
	cmd.Flags().StringVar(&cf.codec, "codec", "", "override client.codec (json, binary)")
	return cmd
}
