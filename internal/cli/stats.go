package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func NewStatsCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <webinar-id>",
		Short: "Show viewer engagement for a webinar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWebinarID(args[0])
			if err != nil {
				return err
			}
			summary, err := deps.Stats.Summarize(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	return cmd
}

func NewQueueCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show pending and dead-lettered flush jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Queue == nil {
				return errors.New("redis not configured")
			}
			pending, dead, err := deps.Queue.Depth(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\ndead: %d\n", pending, dead)
			return nil
		},
	}
	return cmd
}
