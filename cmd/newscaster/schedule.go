package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/newscaster/internal/pipeline"
	"github.com/jonathan/newscaster/internal/server"
	"github.com/jonathan/newscaster/internal/server/ratelimit"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on an interval and serve the HTTP API",
	Long: `Runs the pipeline immediately and then on every tick. A tick that finds a run still active is skipped.
The HTTP server exposes /health, /metrics, /posts, POST /run and /events until SIGINT or SIGTERM.`,
	RunE: runSchedule,
}

var (
	scheduleEvery time.Duration
	scheduleAddr  string
)

func init() {
	scheduleCmd.Flags().DurationVar(&scheduleEvery, "every", time.Hour, "Interval between runs")
	scheduleCmd.Flags().StringVar(&scheduleAddr, "addr", ":8080", "HTTP listen address (empty disables the server)")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	if scheduleEvery <= 0 {
		return errors.New("--every must be positive")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	hub := server.NewHub()
	a, err := newApp(ctx, cfg, logger, hub.Publish)
	if err != nil {
		return err
	}
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tick(ctx, a.orch, logger, scheduleEvery)
		return nil
	})
	if scheduleAddr != "" {
		srv := server.New(server.Config{
			Addr:        scheduleAddr,
			AdminToken:  cfg.AdminToken,
			RateLimit:   ratelimit.LoadConfig(os.Getenv),
			BaseContext: ctx,
			Logger:      logger,
			Metrics:     a.metrics,
			Hub:         hub,
		}, a.db, a.orch)
		g.Go(func() error { return srv.ListenAndServe(ctx) })
	}

	logger.WithFields(logrus.Fields{"every": scheduleEvery.String(), "addr": scheduleAddr}).Info("scheduler started")
	err = g.Wait()
	// runs started over HTTP observe ctx too; let them finish before Close
	a.orch.Wait()
	logger.Info("scheduler stopped")
	return err
}

// tick starts a run now and on every interval until ctx is done. Runs go
// through Start so a slow run makes later ticks skip rather than queue.
func tick(ctx context.Context, orch *pipeline.Orchestrator, logger *logrus.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var current *pipeline.RunHandle
	for {
		h, err := orch.Start(ctx)
		switch {
		case errors.Is(err, pipeline.ErrRunInProgress):
			logger.Info("previous run still active, skipping tick")
		case err != nil:
			logger.WithError(err).Error("could not start run")
		default:
			current = h
			go report(h, logger)
		}

		select {
		case <-ctx.Done():
			if current != nil {
				// the run observes ctx; wait so the lock and pool are released cleanly
				<-current.Done()
			}
			return
		case <-ticker.C:
		}
	}
}

func report(h *pipeline.RunHandle, logger *logrus.Logger) {
	res, err := h.Wait()
	entry := logger.WithField("run_id", h.ID)
	if err != nil {
		entry.WithError(err).WithField("stage", pipeline.FailedStage(err)).Warn("scheduled run failed")
		return
	}
	entry.WithField("external_post_id", res.ExternalPostID).Info("scheduled run published")
}
