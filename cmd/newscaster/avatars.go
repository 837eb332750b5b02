package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/newscaster/internal/observability"
)

var avatarsCmd = &cobra.Command{
	Use:   "avatars",
	Short: "List the avatar images the renderer can animate",
	RunE:  runAvatarsList,
}

var avatarsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an avatar image, or replace the URL of an existing title",
	RunE:  runAvatarsAdd,
}

var (
	avatarTitle string
	avatarURL   string
)

func init() {
	avatarsAddCmd.Flags().StringVar(&avatarTitle, "title", "", "Image title (required)")
	avatarsAddCmd.Flags().StringVar(&avatarURL, "url", "", "Public image URL (required)")
	_ = avatarsAddCmd.MarkFlagRequired("title")
	_ = avatarsAddCmd.MarkFlagRequired("url")
	avatarsCmd.AddCommand(avatarsAddCmd)
	rootCmd.AddCommand(avatarsCmd)
}

func runAvatarsList(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	images, err := database.ListAvatarImages(ctx)
	if err != nil {
		return err
	}
	observability.NewPrinter(os.Stdout).PrintAvatars(images, cfg.FallbackImageTitle)
	return nil
}

func runAvatarsAdd(cmd *cobra.Command, _ []string) error {
	if err := validateImageURL(avatarURL); err != nil {
		return err
	}
	ctx := context.Background()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	img, err := database.UpsertAvatarImage(ctx, avatarTitle, avatarURL)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Saved avatar %d %q\n", img.ID, img.Title)
	return nil
}

// validateImageURL requires an absolute http(s) URL, since the render service
// downloads the image itself.
func validateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("--url must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}
