package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/newscaster/internal/db"
	"github.com/jonathan/newscaster/internal/observability"
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "List recent posts",
	RunE:  runPosts,
}

var (
	postsLimit     int
	postsPublished bool
	postsDrafts    bool
	postsContext   bool
)

func init() {
	postsCmd.Flags().IntVar(&postsLimit, "limit", 10, "Number of posts to list")
	postsCmd.Flags().BoolVar(&postsPublished, "published", false, "Only published posts")
	postsCmd.Flags().BoolVar(&postsDrafts, "drafts", false, "Only provisional posts")
	postsCmd.Flags().BoolVar(&postsContext, "dedup-context", false, "Show the lines the next run receives as previous posts")
	postsCmd.MarkFlagsMutuallyExclusive("published", "drafts")
	rootCmd.AddCommand(postsCmd)
}

func runPosts(cmd *cobra.Command, _ []string) error {
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

	printer := observability.NewPrinter(os.Stdout)

	if postsContext {
		scripts, err := database.RecentPublishedScripts(ctx, cfg.DedupWindow)
		if err != nil {
			return err
		}
		printer.PrintDedupContext(scripts)
		return nil
	}

	filters := db.PostFilters{Limit: postsLimit}
	switch {
	case postsPublished:
		t := true
		filters.Published = &t
	case postsDrafts:
		f := false
		filters.Published = &f
	}
	posts, err := database.ListPosts(ctx, filters)
	if err != nil {
		return err
	}
	printer.PrintPosts(posts)
	return nil
}
