package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonathan/newscaster/internal/archive"
	"github.com/jonathan/newscaster/internal/assets"
	"github.com/jonathan/newscaster/internal/config"
	"github.com/jonathan/newscaster/internal/content"
	"github.com/jonathan/newscaster/internal/db"
	"github.com/jonathan/newscaster/internal/fetch"
	"github.com/jonathan/newscaster/internal/llm"
	"github.com/jonathan/newscaster/internal/logging"
	"github.com/jonathan/newscaster/internal/observability"
	"github.com/jonathan/newscaster/internal/pipeline"
	"github.com/jonathan/newscaster/internal/publish"
	"github.com/jonathan/newscaster/internal/render"
	"github.com/jonathan/newscaster/internal/search"
)

// loadConfig resolves flag > file > env > defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfigPath, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyRootFlags(cmd, cfg)
	return cfg, cfg.Validate()
}

func applyRootFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("db-url") {
		cfg.DatabaseURL = flagDatabaseURL
	}
	if flags.Changed("verbose") {
		cfg.Verbose = flagVerbose
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
}

// openStore connects to PostgreSQL and applies the schema.
func openStore(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url (DATABASE_URL) is required")
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// app holds the wired collaborators of a pipeline-running command.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *db.DB
	llm     llm.Client
	metrics *observability.Metrics
	orch    *pipeline.Orchestrator
}

// newApp builds every component from cfg. onProgress may be nil.
func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, onProgress pipeline.ProgressCallback) (_ *app, err error) {
	if err := cfg.ValidateForRun(); err != nil {
		return nil, err
	}
	mode, err := pipeline.ParsePersistenceMode(cfg.PersistenceMode)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.db, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	if a.llm, err = llm.NewClient(ctx, llmConfig(cfg), cfg.LLMAPIKey); err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	var searcher search.Provider
	if cfg.TavilyAPIKey != "" {
		if searcher, err = search.NewProvider(search.Config{APIKey: cfg.TavilyAPIKey}); err != nil {
			return nil, err
		}
	}

	renderer, err := render.NewClient(render.Options{
		APIURL:       cfg.RenderAPIURL,
		APIKey:       cfg.DIDAPIKey,
		PollInterval: cfg.PollInterval(),
		MaxWait:      cfg.MaxWait(),
		MaxAttempts:  cfg.RenderMaxAttempts,
		Logger:       logger,
		OnStatus:     func(j render.Job) { a.metrics.RenderPolled(string(j.Status)) },
	})
	if err != nil {
		return nil, err
	}

	var archiver pipeline.MediaArchiver
	if cfg.ArchiveS3Bucket != "" {
		s3, err := archive.NewS3Archiver(ctx, archive.S3Config{
			Bucket:   cfg.ArchiveS3Bucket,
			Prefix:   cfg.ArchiveS3Prefix,
			Region:   cfg.ArchiveS3Region,
			Endpoint: cfg.ArchiveS3Endpoint,
		}, logger)
		if err != nil {
			return nil, err
		}
		archiver = s3
	}

	pubOpts := publish.Options{
		APIURL: cfg.PublishAPIURL,
		Cookies: publish.SessionCookies{
			AuthToken: cfg.TwitterAuthToken,
			CSRFToken: cfg.TwitterCT0,
			GuestID:   cfg.TwitterGuestID,
		},
		Credentials: publish.Credentials{
			Username:        cfg.TwitterUsername,
			Password:        cfg.TwitterPassword,
			Email:           cfg.TwitterEmail,
			TwoFactorSecret: cfg.Twitter2FASecret,
		},
		BearerToken: cfg.TwitterBearer,
		Logger:      logger,
	}
	if cfg.SessionPersistence() {
		pubOpts.Store = a.db
	}

	a.orch, err = pipeline.New(pipeline.Deps{
		Generator: content.NewGenerator(a.llm, searcher, a.db, contentOptions(cfg), logger),
		Assets:    assets.NewSelector(a.db, cfg.FallbackImageTitle, nil),
		Renderer:  renderer,
		Fetcher:   fetch.New(nil),
		Archiver:  archiver,
		Publisher: publish.NewPublisher(pubOpts),
		Store:     a.db,
	}, pipeline.Options{
		GroundingEnabled: cfg.Grounding(),
		PersistenceMode:  mode,
		Locker:           pipeline.ChainLocker{pipeline.NewMutexLocker(), a.db.NewRunLock(db.RunLockKey)},
		Logger:           logger,
		Metrics:          a.metrics,
		OnProgress:       onProgress,
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"llm_provider": cfg.LLMProvider,
		"grounding":    cfg.Grounding(),
		"persistence":  mode,
		"archive":      archiver != nil,
		"auth_token":   logging.SanitizeToken(cfg.TwitterAuthToken),
		"stages":       a.orch.Plan(),
	}).Debug("pipeline wired")
	return a, nil
}

// Close releases the model client and the pool.
func (a *app) Close() {
	if a.llm != nil {
		if err := a.llm.Close(); err != nil {
			a.logger.WithError(err).Warn("close LLM client")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

func llmConfig(cfg *config.Config) *llm.Config {
	c := llm.DefaultConfig()
	if llm.Provider(cfg.LLMProvider) == llm.ProviderGemini {
		c = llm.DefaultGeminiConfig()
	}
	if cfg.LLMAPIURL != "" {
		c.APIURL = cfg.LLMAPIURL
	}
	if cfg.LLMModelScript != "" {
		c = c.WithModel(llm.TierScript, cfg.LLMModelScript)
	}
	if cfg.LLMModelAnnouncement != "" {
		c = c.WithModel(llm.TierAnnouncement, cfg.LLMModelAnnouncement)
	}
	return c
}

func contentOptions(cfg *config.Config) content.Options {
	opts := content.DefaultOptions()
	if cfg.Persona != "" {
		opts.Persona = cfg.Persona
	}
	if cfg.Topic != "" {
		opts.Topic = cfg.Topic
	}
	if cfg.DedupWindow > 0 {
		opts.DedupWindow = cfg.DedupWindow
	}
	return opts
}

func newLogger(cfg *config.Config) *logrus.Logger {
	return logging.NewLoggerTo(os.Stderr, cfg.LogLevel)
}
