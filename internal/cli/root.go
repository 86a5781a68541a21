// Package cli holds the vlctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aura-webinar/virtual-live/internal/analytics"
	"github.com/aura-webinar/virtual-live/internal/models"
	"github.com/aura-webinar/virtual-live/internal/schedule"
	"github.com/aura-webinar/virtual-live/internal/session"
)

// WebinarStore loads webinars.
type WebinarStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
	List(ctx context.Context) ([]models.Webinar, error)
}

// CommentLister reads a webinar's chat.
type CommentLister interface {
	List(ctx context.Context, webinarID uuid.UUID) ([]models.ChatEntry, error)
}

// TranscriptUploader stores an exported transcript and returns where it lives.
type TranscriptUploader interface {
	UploadTranscript(ctx context.Context, webinarID string, body io.Reader, at time.Time) (string, error)
}

// QueueInspector reports flush queue depth.
type QueueInspector interface {
	Depth(ctx context.Context) (pending, dead int64, err error)
}

// Summarizer reports engagement for a webinar.
type Summarizer interface {
	Summarize(ctx context.Context, webinarID uuid.UUID) (*analytics.Summary, error)
}

type Dependencies struct {
	Webinars    WebinarStore
	Comments    CommentLister
	Transcripts TranscriptUploader // nil when no bucket is configured
	Queue       QueueInspector     // nil without Redis
	Stats       Summarizer
	Resolver    *schedule.Resolver
	Classifier  session.Classifier
	Tolerance   time.Duration
	Clock       func() time.Time
}

func (d *Dependencies) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vlctl",
		Short:         "Inspect virtual-live webinars",
		Long:          "Operator tool for virtual-live webinars: schedule state, chat replay, transcript export and flush queue health.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewStateCmd(deps))
	rootCmd.AddCommand(NewCurrentCmd(deps))
	rootCmd.AddCommand(NewReplayCmd(deps))
	rootCmd.AddCommand(NewExportCmd(deps))
	rootCmd.AddCommand(NewStatsCmd(deps))
	rootCmd.AddCommand(NewQueueCmd(deps))

	return rootCmd
}

func parseWebinarID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid webinar id %q: %w", arg, err)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
