package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/timeline"
	"github.com/aura-webinar/virtual-live/internal/viewer"
)

// ErrNoTranscriptBucket is returned by export when no transcripts bucket is configured.
var ErrNoTranscriptBucket = errors.New("transcripts bucket not configured")

func NewReplayCmd(deps *Dependencies) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "replay <webinar-id>",
		Short: "Print the chat a viewer sees at a video position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWebinarID(args[0])
			if err != nil {
				return err
			}
			offset, err := timeline.ParseOffset(at)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			all, err := deps.Comments.List(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			visible := timeline.VisibleEntries(all, offset)
			if len(visible) == 0 {
				fmt.Fprintln(out, "No chat at", timeline.FormatOffset(offset))
				return nil
			}
			for _, e := range visible {
				fmt.Fprintf(out, "[%s] %s: %s\n", timeline.FormatOffset(e.VideoOffset), e.AuthorName, e.Body)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "99:59:59", "video position as HH:MM:SS")
	return cmd
}

func NewExportCmd(deps *Dependencies) *cobra.Command {
	var stdout bool

	cmd := &cobra.Command{
		Use:   "export <webinar-id>",
		Short: "Export the chat transcript as NDJSON to S3",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseWebinarID(args[0])
			if err != nil {
				return err
			}
			if !stdout && deps.Transcripts == nil {
				return ErrNoTranscriptBucket
			}
			all, err := deps.Comments.List(cmd.Context(), id)
			if err != nil {
				return err
			}
			if stdout {
				return writeTranscript(cmd.OutOrStdout(), all)
			}
			var buf bytes.Buffer
			if err := writeTranscript(&buf, all); err != nil {
				return err
			}
			url, err := deps.Transcripts.UploadTranscript(cmd.Context(), id.String(), &buf, deps.now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d messages\n%s\n", len(all), url)
			return nil
		},
	}

	cmd.Flags().BoolVar(&stdout, "stdout", false, "write the transcript to stdout instead of S3")
	return cmd
}

// writeTranscript writes one chat message per line in playback order.
func writeTranscript(w io.Writer, entries []models.ChatEntry) error {
	sorted := append(entries[:0:0], entries...)
	timeline.Sort(sorted)
	enc := json.NewEncoder(w)
	for _, e := range sorted {
		if err := enc.Encode(viewer.NewChatMessage(e)); err != nil {
			return err
		}
	}
	return nil
}
