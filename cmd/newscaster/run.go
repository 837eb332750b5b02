package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/newscaster/internal/config"
	"github.com/jonathan/newscaster/internal/observability"
	"github.com/jonathan/newscaster/internal/pipeline"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the newscaster pipeline once",
	Long: `Generates a script and announcement, selects an avatar, renders and fetches the video, publishes it and records the post.

A post is recorded only after publishing succeeds (unless --persistence draft-then-mark).`,
	RunE: runPipelineCmd,
}

var (
	runGrounding   bool
	runPersistence string
)

func init() {
	runCommand.Flags().BoolVar(&runGrounding, "grounding", true, "Ground the script in today's search results")
	runCommand.Flags().StringVar(&runPersistence, "persistence", "", "When to write the post row: post-success-only or draft-then-mark")
	rootCmd.AddCommand(runCommand)
}

// applyRunFlags copies explicitly set run flags over cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("grounding") {
		g := runGrounding
		cfg.GroundingEnabled = &g
	}
	if cmd.Flags().Changed("persistence") {
		cfg.PersistenceMode = runPersistence
	}
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	var onProgress pipeline.ProgressCallback
	if cfg.Verbose {
		onProgress = func(e pipeline.ProgressEvent) {
			logger.WithField("step", e.Step).Debug(e.Message)
		}
	}

	a, err := newApp(ctx, cfg, logger, onProgress)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orch.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.Verbose {
		observability.NewPrinter(os.Stdout).PrintRunSummary(res.Summary())
	}
	return nil
}
