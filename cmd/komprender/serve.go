package main

import (
	"github.com/spf13/cobra"

	"github.com/aleksandr-gorokhov/komprender/internal/engine"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST, websocket and gRPC control surfaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := engine.Bootstrap(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			return e.Run(cmd.Context())
		},
	}
}
