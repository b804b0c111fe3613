package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/internal/engine"
	"github.com/aleksandr-gorokhov/komprender/source/kafka"
)

func newTopicsCommand(a *app) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "topics [NAME]",
		Short: "List topics, or describe one topic's partitions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd.Context(), a, func(admin kafka.TopicAdmin) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer tw.Flush()

				if len(args) == 1 {
					detail, err := admin.DescribeTopic(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(tw, "PARTITION\tLEADER\tREPLICAS\tLOW\tHIGH\tMESSAGES")
					for _, p := range detail.Partitions {
						fmt.Fprintf(tw, "%d\t%d\t%v\t%d\t%d\t%d\n", p.ID, p.Leader, p.Replicas, p.Low, p.High, p.Messages)
					}
					return nil
				}

				topics, err := admin.ListTopics(cmd.Context(), filter)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "TOPIC\tPARTITIONS\tMESSAGES")
				for _, t := range topics {
					fmt.Fprintf(tw, "%s\t%d\t%d\n", t.Name, t.Partitions, t.Messages)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only topics whose name contains this")
	return cmd
}

func withAdmin(ctx context.Context, a *app, fn func(kafka.TopicAdmin) error) error {
	core, err := connect(ctx, a)
	if err != nil {
		return err
	}
	defer core.Close()

	adapter, err := core.Connections.Adapter()
	if err != nil {
		return err
	}
	admin, err := adapter.NewAdmin()
	if err != nil {
		return err
	}
	defer admin.Close()
	return fn(admin)
}

func connect(ctx context.Context, a *app) (*engine.Core, error) {
	core := engine.NewCore(a.cfg)
	ok, err := core.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: set kafka.brokers or --brokers", consume.ErrConnectionNotEstablished)
	}
	return core, nil
}
