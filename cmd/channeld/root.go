package main

import (
	"fmt"
	"tflite-channel/config"
	"tflite-channel/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "channeld",
		Short:         "Engine host for the tflite_flutter platform channel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to channeld.toml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level")

	root.AddCommand(newServeCmd(flags), newCallCmd(flags), newVersionCmd())
	return root
}

func (f *globalFlags) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the channeld version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "channeld %s (commit: %s)\n", version, commit)
		},
	}
}
