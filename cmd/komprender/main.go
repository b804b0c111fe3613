package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aleksandr-gorokhov/komprender/internal/config"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
)

// app carries the flags shared by every subcommand and the loaded config.
type app struct {
	cfgFile  string
	brokers  []string
	registry string
	logLevel string

	cfg config.Config
}

func (a *app) load() error {
	logging.InitFromEnv()
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if len(a.brokers) > 0 {
		cfg.Kafka.Brokers = a.brokers
		cfg.Kafka.ApplyDefaults()
	}
	if a.registry != "" {
		cfg.SchemaRegistry.URL = a.registry
	}
	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	if level != "" || cfg.Log.JSON || len(cfg.Log.Components) > 0 {
		logging.Configure(logging.Options{Level: level, JSON: cfg.Log.JSON, Components: cfg.Log.Components})
	}
	a.cfg = cfg
	return nil
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "komprender",
		Short:         "Browse, consume and produce Kafka topics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "komprender.yml", "path to config file")
	root.PersistentFlags().StringSliceVar(&a.brokers, "brokers", nil, "broker addresses, overrides kafka.brokers")
	root.PersistentFlags().StringVar(&a.registry, "schema-registry", "", "schema registry url, overrides schema_registry.url")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newServeCommand(a),
		newConsumeCommand(a),
		newTopicsCommand(a),
		newProduceCommand(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logging.L().Error("komprender", "err", err)
		os.Exit(1)
	}
}
