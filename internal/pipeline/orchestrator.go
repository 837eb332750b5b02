// Package pipeline runs one end-to-end newscast: generate the script, pick an
// avatar, render and fetch the video, publish it, and record the post.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/newscaster/internal/content"
	"github.com/jonathan/newscaster/internal/db"
	"github.com/jonathan/newscaster/internal/fetch"
	"github.com/jonathan/newscaster/internal/logging"
	"github.com/jonathan/newscaster/internal/observability"
	"github.com/jonathan/newscaster/internal/publish"
	"github.com/jonathan/newscaster/internal/render"
)

// PersistenceMode selects when the Post row is written.
type PersistenceMode string

const (
	// PersistPostSuccessOnly writes one published row after publish succeeds.
	PersistPostSuccessOnly PersistenceMode = "post-success-only"
	// PersistDraftThenMark writes a provisional row after generation and marks
	// it published at the end.
	PersistDraftThenMark PersistenceMode = "draft-then-mark"
)

// ParsePersistenceMode maps a config value to a PersistenceMode. Empty means
// post-success-only.
func ParsePersistenceMode(s string) (PersistenceMode, error) {
	switch PersistenceMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PersistPostSuccessOnly:
		return PersistPostSuccessOnly, nil
	case PersistDraftThenMark:
		return PersistDraftThenMark, nil
	default:
		return "", fmt.Errorf("unknown persistence mode %q", s)
	}
}

// ContentGenerator writes the script and announcement.
type ContentGenerator interface {
	Generate(ctx context.Context, grounded bool) (*content.Content, error)
}

// AssetSelector picks the image to animate.
type AssetSelector interface {
	Select(ctx context.Context) (string, error)
}

// VideoRenderer turns an image and a script into a media URL.
type VideoRenderer interface {
	Render(ctx context.Context, imageURL, script string) (string, error)
}

// MediaFetcher downloads rendered media.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Media, error)
}

// MediaArchiver keeps a copy of the media before it is published.
type MediaArchiver interface {
	Store(ctx context.Context, runID string, data []byte, contentType string) (string, error)
}

// Publisher posts media with text and returns the external post id.
type Publisher interface {
	Publish(ctx context.Context, media []byte, text string) (*publish.Result, error)
}

// PostStore is the durable record of posts.
type PostStore interface {
	InsertPublishedPost(ctx context.Context, input *db.PublishedPostInput) (*db.Post, error)
	InsertDraftPost(ctx context.Context, input *db.DraftPostInput) (*db.Post, error)
	MarkPublished(ctx context.Context, id uuid.UUID, input *db.MarkPublishedInput) (*db.Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (*db.Post, error)
}

// Deps are the already-constructed collaborators of a run. Archiver is
// optional; everything else is required.
type Deps struct {
	Generator ContentGenerator
	Assets    AssetSelector
	Renderer  VideoRenderer
	Fetcher   MediaFetcher
	Archiver  MediaArchiver
	Publisher Publisher
	Store     PostStore
}

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step     string `json:"step"`
	Category string `json:"category"`
	Message  string `json:"message"`
	RunID    string `json:"run_id,omitempty"`
	Content  any    `json:"content,omitempty"`
}

// Steps of the final event of every run.
const (
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Options configures an Orchestrator.
type Options struct {
	GroundingEnabled bool
	PersistenceMode  PersistenceMode
	// Locker serializes runs; nil means an in-process MutexLocker.
	Locker     Locker
	Logger     *logrus.Logger
	Metrics    *observability.Metrics
	OnProgress ProgressCallback
}

// Result describes a completed run.
type Result struct {
	RunID          string
	Content        *content.Content
	ImageURL       string
	MediaURL       string
	ArchiveURL     string
	ExternalPostID string
	Post           *db.Post
	Stages         []observability.StageTiming
}

// Summary converts the result for the verbose printer.
func (r *Result) Summary() observability.RunSummary {
	s := observability.RunSummary{
		RunID:          r.RunID,
		ImageURL:       r.ImageURL,
		MediaURL:       r.MediaURL,
		ArchiveURL:     r.ArchiveURL,
		ExternalPostID: r.ExternalPostID,
		Stages:         r.Stages,
	}
	if r.Content != nil {
		s.Grounded = r.Content.Grounded()
		s.Script = r.Content.Script
		s.AnnouncementText = r.Content.AnnouncementText
	}
	if r.Post != nil {
		s.PostID = r.Post.ID.String()
	}
	return s
}

// Orchestrator runs the stages of a newscast strictly in sequence. Any stage
// failure aborts the run; in post-success-only mode nothing is written unless
// publish succeeded.
type Orchestrator struct {
	deps    Deps
	opts    Options
	locker  Locker
	logger  *logrus.Logger
	metrics *observability.Metrics
	plan    []string

	inflight sync.WaitGroup
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	var missing []string
	if deps.Generator == nil {
		missing = append(missing, "generator")
	}
	if deps.Assets == nil {
		missing = append(missing, "assets")
	}
	if deps.Renderer == nil {
		missing = append(missing, "renderer")
	}
	if deps.Fetcher == nil {
		missing = append(missing, "fetcher")
	}
	if deps.Publisher == nil {
		missing = append(missing, "publisher")
	}
	if deps.Store == nil {
		missing = append(missing, "store")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing dependencies: %s", strings.Join(missing, ", "))
	}

	if opts.PersistenceMode == "" {
		opts.PersistenceMode = PersistPostSuccessOnly
	}
	if _, err := ParsePersistenceMode(string(opts.PersistenceMode)); err != nil {
		return nil, err
	}

	plan := Plan(opts.PersistenceMode, deps.Archiver != nil)
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		deps:    deps,
		opts:    opts,
		locker:  opts.Locker,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		plan:    plan,
	}
	if o.locker == nil {
		o.locker = NewMutexLocker()
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	return o, nil
}

// Plan returns the ordered stage names of a regular run.
func (o *Orchestrator) Plan() []string {
	return append([]string(nil), o.plan...)
}

// Run waits for the run lock, then executes one run.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	release, err := o.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer release()
	return o.execute(ctx, uuid.NewString(), o.plan, o.run)
}

// RunHandle tracks a run started in the background by Start.
type RunHandle struct {
	ID     string
	done   chan struct{}
	result *Result
	err    error
}

// Done is closed once the run has finished and released its lock.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes.
func (h *RunHandle) Wait() (*Result, error) {
	<-h.done
	return h.result, h.err
}

// Start acquires the run lock without waiting and executes the run in a new
// goroutine. It returns ErrRunInProgress when another run holds the lock. The
// run observes ctx, not the caller's lifetime.
func (o *Orchestrator) Start(ctx context.Context) (*RunHandle, error) {
	release, ok, err := o.locker.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		o.metrics.RunFinished(observability.OutcomeSkipped)
		return nil, ErrRunInProgress
	}

	h := &RunHandle{ID: uuid.NewString(), done: make(chan struct{})}
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer close(h.done)
		defer release()
		h.result, h.err = o.execute(ctx, h.ID, o.plan, o.run)
	}()
	return h, nil
}

// Wait blocks until every run started with Start has finished. Callers stop
// starting runs (cancel their ctx) before closing shared clients.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// TryRun executes one run, or returns ErrRunInProgress without waiting when
// another run holds the lock.
func (o *Orchestrator) TryRun(ctx context.Context) (*Result, error) {
	h, err := o.Start(ctx)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// PublishDraft takes a provisional post through asset selection, rendering
// and publishing, then marks it published.
func (o *Orchestrator) PublishDraft(ctx context.Context, id uuid.UUID) (*Result, error) {
	release, err := o.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer release()

	plan := ResumePlan(o.deps.Archiver != nil)
	return o.execute(ctx, uuid.NewString(), plan, func(ctx context.Context, r *runState) error {
		return o.resume(ctx, r, id)
	})
}

// runState carries values between the stages of one run.
type runState struct {
	result *Result
	plan   []string
	media  *fetch.Media
	draft  *db.Post
}

func (o *Orchestrator) execute(ctx context.Context, runID string, plan []string, body func(context.Context, *runState) error) (*Result, error) {
	r := &runState{
		result: &Result{RunID: runID},
		plan:   plan,
	}
	entry := logging.WithRun(o.logger, r.result.RunID)
	entry.WithFields(logging.Fields{
		"grounding":   o.opts.GroundingEnabled,
		"persistence": o.opts.PersistenceMode,
		"stages":      strings.Join(plan, ","),
	}).Info("pipeline run started")

	start := time.Now()
	if err := body(ctx, r); err != nil {
		entry.WithError(err).WithField("stage", FailedStage(err)).Error("pipeline run failed")
		o.metrics.RunFinished(observability.OutcomeFailure)
		o.emit(ProgressEvent{Step: EventRunFailed, Category: "run", Message: err.Error(), RunID: runID})
		return nil, err
	}

	entry.WithFields(logging.Fields{
		"duration_ms":      time.Since(start).Milliseconds(),
		"external_post_id": r.result.ExternalPostID,
	}).Info("pipeline run completed")
	o.metrics.RunFinished(observability.OutcomeSuccess)
	o.emit(ProgressEvent{
		Step:     EventRunCompleted,
		Category: "run",
		Message:  "run completed",
		RunID:    runID,
		Content:  r.result.Summary(),
	})
	return r.result, nil
}

func (o *Orchestrator) run(ctx context.Context, r *runState) error {
	res := r.result

	if err := o.stage(ctx, r, StageGenerate, func(ctx context.Context) (any, error) {
		c, err := o.deps.Generator.Generate(ctx, o.opts.GroundingEnabled)
		if err != nil {
			return nil, err
		}
		res.Content = c
		return c, nil
	}); err != nil {
		return err
	}

	if o.opts.PersistenceMode == PersistDraftThenMark {
		if err := o.stage(ctx, r, StagePersistDraft, func(ctx context.Context) (any, error) {
			post, err := o.deps.Store.InsertDraftPost(ctx, &db.DraftPostInput{
				Script:           res.Content.Script,
				AnnouncementText: res.Content.AnnouncementText,
				NewsContext:      res.Content.NewsContext,
			})
			if err != nil {
				return nil, err
			}
			r.draft = post
			return post, nil
		}); err != nil {
			return err
		}
	}

	if err := o.media(ctx, r); err != nil {
		return err
	}

	if r.draft != nil {
		return o.markPublished(ctx, r)
	}
	return o.stage(ctx, r, StagePersist, func(ctx context.Context) (any, error) {
		post, err := o.deps.Store.InsertPublishedPost(ctx, &db.PublishedPostInput{
			Script:           res.Content.Script,
			AnnouncementText: res.Content.AnnouncementText,
			NewsContext:      res.Content.NewsContext,
			ImageURL:         res.ImageURL,
			MediaURL:         res.MediaURL,
			ExternalPostID:   res.ExternalPostID,
		})
		if err != nil {
			return nil, err
		}
		res.Post = post
		return post, nil
	})
}

func (o *Orchestrator) resume(ctx context.Context, r *runState, id uuid.UUID) error {
	if err := o.stage(ctx, r, StageLoadDraft, func(ctx context.Context) (any, error) {
		post, err := o.deps.Store.GetPost(ctx, id)
		if err != nil {
			return nil, err
		}
		if post == nil {
			return nil, &db.StoreError{Op: "load draft", Message: "post " + id.String() + " not found"}
		}
		if !post.Provisional() {
			return nil, &db.StoreError{Op: "load draft", Message: "post " + id.String() + " is already published"}
		}
		r.draft = post
		r.result.Content = &content.Content{
			Script:           post.Script,
			AnnouncementText: post.AnnouncementText,
			NewsContext:      post.NewsContext,
		}
		return post, nil
	}); err != nil {
		return err
	}

	if err := o.media(ctx, r); err != nil {
		return err
	}
	return o.markPublished(ctx, r)
}

// media runs the stages shared by every plan: select, render, fetch,
// archive and publish.
func (o *Orchestrator) media(ctx context.Context, r *runState) error {
	res := r.result

	if err := o.stage(ctx, r, StageSelectAsset, func(ctx context.Context) (any, error) {
		url, err := o.deps.Assets.Select(ctx)
		if err != nil {
			return nil, err
		}
		res.ImageURL = url
		return url, nil
	}); err != nil {
		return err
	}

	if err := o.stage(ctx, r, StageRender, func(ctx context.Context) (any, error) {
		url, err := o.deps.Renderer.Render(ctx, res.ImageURL, res.Content.Script)
		if err != nil {
			return nil, err
		}
		if url == "" {
			return nil, &render.RenderError{Message: "empty media URL"}
		}
		res.MediaURL = url
		return url, nil
	}); err != nil {
		return err
	}

	if err := o.stage(ctx, r, StageFetch, func(ctx context.Context) (any, error) {
		m, err := o.deps.Fetcher.Fetch(ctx, res.MediaURL)
		if err != nil {
			return nil, err
		}
		r.media = m
		return len(m.Data), nil
	}); err != nil {
		return err
	}

	if o.deps.Archiver != nil {
		if err := o.stage(ctx, r, StageArchive, func(ctx context.Context) (any, error) {
			url, err := o.deps.Archiver.Store(ctx, res.RunID, r.media.Data, r.media.ContentType)
			if err != nil {
				return nil, err
			}
			res.ArchiveURL = url
			return url, nil
		}); err != nil {
			return err
		}
	}

	return o.stage(ctx, r, StagePublish, func(ctx context.Context) (any, error) {
		out, err := o.deps.Publisher.Publish(ctx, r.media.Data, res.Content.AnnouncementText)
		if err != nil {
			return nil, err
		}
		res.ExternalPostID = out.PostID
		return out.PostID, nil
	})
}

func (o *Orchestrator) markPublished(ctx context.Context, r *runState) error {
	res := r.result
	return o.stage(ctx, r, StageMarkPublished, func(ctx context.Context) (any, error) {
		post, err := o.deps.Store.MarkPublished(ctx, r.draft.ID, &db.MarkPublishedInput{
			ImageURL:       res.ImageURL,
			MediaURL:       res.MediaURL,
			ExternalPostID: res.ExternalPostID,
		})
		if err != nil {
			return nil, err
		}
		res.Post = post
		return post, nil
	})
}

// stage runs fn as the named stage: it logs start and outcome, records
// metrics, emits progress and wraps any failure in a StageError.
func (o *Orchestrator) stage(ctx context.Context, r *runState, name string, fn func(context.Context) (any, error)) error {
	def := StageRegistry[name]
	entry := logging.WithStage(o.logger, r.result.RunID, name)

	o.emit(ProgressEvent{
		Step:     name,
		Category: def.Category,
		Message:  fmt.Sprintf("Step %d/%d: %s", indexOf(r.plan, name)+1, len(r.plan), name),
		RunID:    r.result.RunID,
	})
	entry.Info("stage started")

	if err := ctx.Err(); err != nil {
		o.metrics.ObserveStage(name, 0, err)
		entry.WithError(err).Error("stage cancelled before start")
		return &StageError{Stage: name, Err: err}
	}

	start := time.Now()
	out, err := fn(ctx)
	elapsed := time.Since(start)
	o.metrics.ObserveStage(name, elapsed, err)

	if err != nil {
		entry.WithError(err).WithField("duration_ms", elapsed.Milliseconds()).Error("stage failed")
		return &StageError{Stage: name, Err: err}
	}

	r.result.Stages = append(r.result.Stages, observability.StageTiming{Stage: name, Duration: elapsed})
	entry.WithField("duration_ms", elapsed.Milliseconds()).Info("stage completed")
	o.emit(ProgressEvent{
		Step:     name,
		Category: def.Category,
		Message:  name + " completed",
		RunID:    r.result.RunID,
		Content:  out,
	})
	return nil
}

// emit calls the progress callback if configured
func (o *Orchestrator) emit(event ProgressEvent) {
	if o.opts.OnProgress != nil {
		o.opts.OnProgress(event)
	}
}

func indexOf(plan []string, name string) int {
	for i, s := range plan {
		if s == name {
			return i
		}
	}
	return -1
}
