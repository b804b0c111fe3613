package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/internal/decode"
	"github.com/aleksandr-gorokhov/komprender/internal/engine"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/internal/transport"
	"github.com/aleksandr-gorokhov/komprender/sink/stdout"
)

func newConsumeCommand(a *app) *cobra.Command {
	var (
		mode   string
		remote string
	)
	cmd := &cobra.Command{
		Use:   "consume TOPIC",
		Short: "Print decoded records of a topic until Ctrl-C",
		Long: `Consume runs one read session with a throwaway consumer group that never
commits. --mode picks the start position: from_beginning (first 100 records),
last (about the last 100 records across partitions) or end (new records only).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := args[0]
			out := a.cfg.SinkConfigs.Stdout
			out.Topic = topic
			out.Out = cmd.OutOrStdout()
			printer := stdout.New(out)

			if remote != "" {
				return consumeRemote(cmd.Context(), remote, topic, mode, printer)
			}
			return consumeLocal(cmd.Context(), a, topic, consume.ParseMode(mode), printer)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "from_beginning", "from_beginning, last or end")
	cmd.Flags().StringVar(&remote, "remote", "", "address of a running `komprender serve` gRPC endpoint")
	return cmd
}

func consumeLocal(ctx context.Context, a *app, topic string, mode consume.Mode, sink consume.Sink) error {
	core := engine.NewCore(a.cfg)
	ok, err := core.Connect(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: set kafka.brokers or --brokers", consume.ErrConnectionNotEstablished)
	}
	defer core.Close()

	// Ctrl-C stops the session through the cancellation token.
	go func() {
		<-ctx.Done()
		core.Consumer.StopAllConsumption()
	}()
	return core.Consumer.StartConsumption(context.Background(), topic, mode, sink)
}

func consumeRemote(ctx context.Context, addr, topic, mode string, sink consume.Sink) error {
	client, err := transport.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.StopAll(sctx); err != nil {
			logging.Component("cli").Warn("remote stop", "err", err)
		}
	}()
	return client.Consume(context.Background(), topic, mode, func(rec decode.Record) error {
		return sink.Emit(consume.EventMessageReceived, rec)
	})
}
