package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/newscaster/internal/db"
	"github.com/jonathan/newscaster/internal/observability"
)

var publishDraftCmd = &cobra.Command{
	Use:   "publish-draft",
	Short: "Publish or mark a provisional post",
	Long: `Without --external-id, takes the provisional post through asset selection, rendering and publishing, then marks it published.
With --external-id, only marks the row published, for a video that was posted by other means.`,
	RunE: runPublishDraft,
}

var (
	draftID         string
	draftExternalID string
	draftImageURL   string
	draftMediaURL   string
)

func init() {
	publishDraftCmd.Flags().StringVar(&draftID, "id", "", "Provisional post ID (required)")
	publishDraftCmd.Flags().StringVar(&draftExternalID, "external-id", "", "Identifier of an already published post")
	publishDraftCmd.Flags().StringVar(&draftImageURL, "image-url", "", "Image URL to record with --external-id")
	publishDraftCmd.Flags().StringVar(&draftMediaURL, "media-url", "", "Media URL to record with --external-id")
	_ = publishDraftCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(publishDraftCmd)
}

func runPublishDraft(cmd *cobra.Command, _ []string) error {
	id, err := uuid.Parse(draftID)
	if err != nil {
		return fmt.Errorf("invalid --id: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	printer := observability.NewPrinter(os.Stdout)

	if draftExternalID != "" {
		database, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		post, err := database.MarkPublished(ctx, id, &db.MarkPublishedInput{
			ImageURL:       draftImageURL,
			MediaURL:       draftMediaURL,
			ExternalPostID: draftExternalID,
		})
		if err != nil {
			return err
		}
		printer.PrintPosts([]db.Post{*post})
		return nil
	}

	a, err := newApp(ctx, cfg, newLogger(cfg), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orch.PublishDraft(ctx, id)
	if err != nil {
		return err
	}
	printer.PrintRunSummary(res.Summary())
	return nil
}
