package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aura-webinar/virtual-live/internal/viewer"
	"github.com/aura-webinar/virtual-live/internal/webinars"
)

func NewStateCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <webinar-id>",
		Short: "Show the resolved start and current phase of a webinar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWebinarID(args[0])
			if err != nil {
				return err
			}
			w, err := deps.Webinars.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			now := deps.now()
			start, err := deps.Resolver.Resolve(w.Schedule, now)
			if err != nil {
				return fmt.Errorf("webinar %s: %w", id, err)
			}
			st := deps.Classifier.Classify(start, w.VideoDuration, now)
			return printJSON(cmd.OutOrStdout(), viewer.NewStatePayload(st, start, w.VideoDuration))
		},
	}
	return cmd
}

func NewCurrentCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the webinar a landing visit would pick now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := deps.Webinars.List(cmd.Context())
			if err != nil {
				return err
			}
			tolerance := deps.Tolerance
			if tolerance <= 0 {
				tolerance = webinars.DefaultTolerance
			}
			now := deps.now()
			sel, err := webinars.SelectCurrent(list, deps.Resolver, tolerance, now)
			if err != nil {
				return err
			}
			st := deps.Classifier.Classify(sel.Start, sel.Webinar.VideoDuration, now)
			return printJSON(cmd.OutOrStdout(), struct {
				ID      string              `json:"id"`
				Title   string              `json:"title"`
				Ongoing bool                `json:"ongoing"`
				State   viewer.StatePayload `json:"state"`
			}{sel.Webinar.ID.String(), sel.Webinar.Title, sel.Ongoing, viewer.NewStatePayload(st, sel.Start, sel.Webinar.VideoDuration)})
		},
	}
	return cmd
}
