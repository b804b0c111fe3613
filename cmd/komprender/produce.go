package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aleksandr-gorokhov/komprender/internal/produce"
)

func newProduceCommand(a *app) *cobra.Command {
	var key, payload, subject string
	cmd := &cobra.Command{
		Use:   "produce TOPIC",
		Short: "Send one JSON message, optionally Avro encoded with a registry subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := connect(cmd.Context(), a)
			if err != nil {
				return err
			}
			defer core.Close()

			var res produce.Result
			if subject != "" {
				res, err = core.Producer.ProduceAvro(cmd.Context(), args[0], key, []byte(payload), subject)
			} else {
				res, err = core.Producer.ProduceJSON(cmd.Context(), args[0], key, []byte(payload))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s[%d]@%d\n", args[0], res.Partition, res.Offset)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "message key")
	cmd.Flags().StringVar(&payload, "payload", "", "message body, JSON")
	cmd.Flags().StringVar(&subject, "subject", "", "schema registry subject; encodes the payload as Avro")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}
