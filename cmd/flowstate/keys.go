package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petrijr/flowstate"
)

func (c *cli) keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect flow execution keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "parse KEY...",
		Short: "Split execution keys into conversation id and snapshot id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				key, err := flowstate.ParseKey(arg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "conversation=%s snapshot=%d\n", key.ConversationID, key.SnapshotID)
			}
			return nil
		},
	})
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), c.cfg)
		},
	}
}
