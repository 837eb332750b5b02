package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/newscaster/internal/db"
	"github.com/jonathan/newscaster/internal/pipeline"
)

const (
	defaultPostLimit = 20
	maxPostLimit     = 200
	pingInterval     = 15 * time.Second
)

// Run states reported by /runs/{id} and /events.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunResponse represents the response for POST /run
type RunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunStatusResponse represents the response for GET /runs/{id}
type RunStatusResponse struct {
	RunID          string `json:"run_id"`
	Status         string `json:"status"`
	StartedAt      string `json:"started_at"`
	FailedStage    string `json:"failed_stage,omitempty"`
	Error          string `json:"error,omitempty"`
	PostID         string `json:"post_id,omitempty"`
	ExternalPostID string `json:"external_post_id,omitempty"`
}

// handleHealth reports healthy only while the post store answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.posts.Ping(r.Context()); err != nil {
		s.logger.WithError(err).Warn("health check failed")
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "database unreachable",
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListPosts lists posts newest first.
// Query: limit (1..200, default 20), published (true|false).
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	filters, err := parsePostFilters(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	posts, err := s.posts.ListPosts(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if posts == nil {
		posts = []db.Post{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"posts": posts,
		"count": len(posts),
	})
}

func parsePostFilters(r *http.Request) (db.PostFilters, error) {
	filters := db.PostFilters{Limit: defaultPostLimit}
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPostLimit {
			return filters, &ErrValidation{Field: "limit", Message: "must be an integer between 1 and " + strconv.Itoa(maxPostLimit)}
		}
		filters.Limit = n
	}
	if v := q.Get("published"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filters, &ErrValidation{Field: "published", Message: "must be true or false"}
		}
		filters.Published = &b
	}
	return filters, nil
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		s.errorResponse(w, &ErrValidation{Field: "id", Message: "invalid post ID format"})
		return
	}

	post, err := s.posts.GetPost(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if post == nil {
		s.errorResponse(w, &ErrNotFound{Kind: "post", ID: idStr})
		return
	}
	s.jsonResponse(w, http.StatusOK, post)
}

// handleRun starts a run in the background and returns at once. The run is
// bound to the server's base context, not the request.
func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	h, err := s.runner.Start(s.baseCtx)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.runs.add(h, time.Now().UTC())
	s.logger.WithField("run_id", h.ID).Info("run started over http")

	s.jsonResponse(w, http.StatusAccepted, RunResponse{
		RunID:  h.ID,
		Status: RunStatusRunning,
	})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, ok := s.runs.get(id)
	if !ok {
		s.errorResponse(w, &ErrNotFound{Kind: "run", ID: id})
		return
	}
	s.jsonResponse(w, http.StatusOK, runStatus(t))
}

func runStatus(t *trackedRun) RunStatusResponse {
	resp := RunStatusResponse{
		RunID:     t.handle.ID,
		Status:    RunStatusRunning,
		StartedAt: t.startedAt.Format(time.RFC3339),
	}
	select {
	case <-t.handle.Done():
	default:
		return resp
	}

	res, err := t.handle.Wait()
	if err != nil {
		resp.Status = RunStatusFailed
		resp.FailedStage = pipeline.FailedStage(err)
		resp.Error = err.Error()
		return resp
	}
	resp.Status = RunStatusCompleted
	resp.ExternalPostID = res.ExternalPostID
	if res.Post != nil {
		resp.PostID = res.Post.ID.String()
	}
	return resp
}

// handleEvents streams pipeline progress as SSE. With ?run_id= only that
// run's events are sent and the stream ends with a complete event, also when
// the run finished before the client subscribed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))

	events, cancel := s.hub.Subscribe()
	defer cancel()

	// nil unless the run was started over HTTP and is still tracked
	var tracked *trackedRun
	var runDone <-chan struct{}
	if runID != "" {
		if t, ok := s.runs.get(runID); ok {
			tracked, runDone = t, t.handle.Done()
		}
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.Ping(); err != nil {
				return
			}
		case <-runDone:
			s.finishRunStream(sse, runID, events, tracked)
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if finished, err := s.writeRunEvent(sse, runID, event); err != nil || finished {
				return
			}
		}
	}
}

// finishRunStream flushes queued events of a run whose handle is done, then
// ends the stream. The terminal event is published before Done closes, so
// nothing is left behind.
func (s *Server) finishRunStream(sse *SSEWriter, runID string, events <-chan pipeline.ProgressEvent, t *trackedRun) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if finished, err := s.writeRunEvent(sse, runID, event); err != nil || finished {
				return
			}
		default:
			sse.WriteComplete(runID, runStatus(t).Status) //nolint:errcheck
			return
		}
	}
}

// writeRunEvent sends event when it matches runID and reports whether the
// stream reached the run's terminal event.
func (s *Server) writeRunEvent(sse *SSEWriter, runID string, event pipeline.ProgressEvent) (bool, error) {
	if runID != "" && event.RunID != runID {
		return false, nil
	}
	if err := sse.WriteEvent("step", event); err != nil {
		s.logger.WithError(err).Debug("event stream closed")
		return false, err
	}
	if runID == "" {
		return false, nil
	}
	switch event.Step {
	case pipeline.EventRunCompleted:
		sse.WriteComplete(runID, RunStatusCompleted) //nolint:errcheck
		return true, nil
	case pipeline.EventRunFailed:
		sse.WriteComplete(runID, RunStatusFailed) //nolint:errcheck
		return true, nil
	}
	return false, nil
}
