package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-kaddht/pkg/types"
)

func newIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id [key]",
		Short: "Print the identifier of a key, or a random node identifier",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), types.NewRandomID())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), types.HashID([]byte(args[0])))
			return nil
		},
	}
}
