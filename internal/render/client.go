// Package render drives the talking-head video service: it submits a job for
// an image and script, then polls until the job reaches a terminal state.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/jonathan/newscaster/internal/logging"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultAPIURL is the D-ID API base.
	DefaultAPIURL = "https://api.d-id.com"
	// DefaultPollInterval is the fixed cadence between status checks.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxWait bounds the total time spent waiting for a job.
	DefaultMaxWait = 10 * time.Minute
)

// Voice is the text-to-speech configuration sent with every job.
type Voice struct {
	Provider string
	VoiceID  string
	Style    string
}

// DefaultVoice is the newscaster voice.
func DefaultVoice() Voice {
	return Voice{Provider: "microsoft", VoiceID: "en-US-GuyNeural", Style: "Newscast"}
}

// Options configures a Client.
type Options struct {
	APIURL string
	APIKey string

	PollInterval time.Duration
	// MaxWait caps the total wait; zero waits until a terminal state.
	MaxWait time.Duration
	// MaxAttempts caps the number of status checks; zero is unlimited.
	MaxAttempts int

	Voice      Voice
	HTTPClient *http.Client
	Logger     *logrus.Logger

	// OnStatus is called with every observed job state.
	OnStatus func(Job)
}

// Client talks to the video rendering service.
type Client struct {
	opts   Options
	apiURL string
	http   *http.Client
	logger *logrus.Logger
}

// NewClient creates a render client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("render api key is required")
	}
	if opts.MaxWait < 0 || opts.MaxAttempts < 0 {
		return nil, errors.New("render wait limits must not be negative")
	}
	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Voice == (Voice{}) {
		opts.Voice = DefaultVoice()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{opts: opts, apiURL: apiURL, http: httpClient, logger: logger}, nil
}

type talkRequest struct {
	SourceURL string     `json:"source_url"`
	Script    talkScript `json:"script"`
	Config    talkConfig `json:"config"`
}

type talkScript struct {
	Type     string       `json:"type"`
	Input    string       `json:"input"`
	Provider talkProvider `json:"provider"`
}

type talkProvider struct {
	Type        string          `json:"type"`
	VoiceID     string          `json:"voice_id"`
	VoiceConfig talkVoiceConfig `json:"voice_config"`
}

type talkVoiceConfig struct {
	Style string `json:"style,omitempty"`
}

type talkConfig struct {
	Stitch bool `json:"stitch"`
}

type talkResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ResultURL string `json:"result_url"`
}

// Render submits a job and waits for it, returning the result media URL.
// An error-terminal job never yields a URL.
func (c *Client) Render(ctx context.Context, imageURL, script string) (string, error) {
	id, err := c.Submit(ctx, imageURL, script)
	if err != nil {
		return "", err
	}
	job, err := c.Wait(ctx, id)
	if err != nil {
		return "", err
	}
	return job.ResultURL, nil
}

// Submit creates a render job and returns its identifier.
func (c *Client) Submit(ctx context.Context, imageURL, script string) (string, error) {
	body := talkRequest{
		SourceURL: imageURL,
		Script: talkScript{
			Type:  "text",
			Input: script,
			Provider: talkProvider{
				Type:        c.opts.Voice.Provider,
				VoiceID:     c.opts.Voice.VoiceID,
				VoiceConfig: talkVoiceConfig{Style: c.opts.Voice.Style},
			},
		},
		Config: talkConfig{Stitch: true},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &RenderError{Message: "encode job", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/talks", bytes.NewReader(payload))
	if err != nil {
		return "", &RenderError{Message: "create submit request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var created talkResponse
	if err := c.do(req, &created); err != nil {
		return "", &RenderError{Message: "submit job", Cause: err}
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", &RenderError{Message: "no job id in submit response"}
	}

	c.report(Job{ID: created.ID, Status: StatusSubmitted, RawStatus: created.Status})
	c.logger.WithField("job_id", created.ID).Info("render job submitted")
	return created.ID, nil
}

// Status fetches the current state of a job once.
func (c *Client) Status(ctx context.Context, id string) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/talks/"+id, nil)
	if err != nil {
		return nil, &RenderError{Message: "create status request", JobID: id, Cause: err}
	}

	var resp talkResponse
	if err := c.do(req, &resp); err != nil {
		return nil, &RenderError{Message: "check status", JobID: id, Cause: err}
	}
	return &Job{
		ID:        id,
		Status:    normalizeStatus(resp.Status),
		RawStatus: resp.Status,
		ResultURL: strings.TrimSpace(resp.ResultURL),
	}, nil
}

// Wait polls a job at the configured interval until it is done or failed.
// A failed status request aborts the wait immediately.
func (c *Client) Wait(ctx context.Context, id string) (*Job, error) {
	waitCtx := ctx
	if c.opts.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.MaxWait)
		defer cancel()
	}

	maxRetries := -1
	if c.opts.MaxAttempts > 0 {
		maxRetries = c.opts.MaxAttempts - 1
	}
	policy := retrypolicy.NewBuilder[*Job]().
		HandleIf(func(job *Job, err error) bool {
			return err == nil && job != nil && !job.Status.Terminal()
		}).
		WithDelay(c.opts.PollInterval).
		WithMaxRetries(maxRetries).
		ReturnLastFailure().
		Build()

	polls := 0
	job, err := failsafe.With[*Job](policy).WithContext(waitCtx).Get(func() (*Job, error) {
		polls++
		job, err := c.Status(waitCtx, id)
		if err != nil {
			return nil, err
		}
		job.Polls = polls
		c.report(*job)
		c.logger.WithFields(logging.Fields{
			"job_id": id,
			"status": job.RawStatus,
			"poll":   polls,
		}).Debug("render job status")
		return job, nil
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &RenderError{Message: "wait cancelled", JobID: id, Cause: ctxErr}
	}
	if waitCtx.Err() != nil {
		return nil, &RenderError{Message: msgTimeout, JobID: id, Cause: waitCtx.Err()}
	}
	if err != nil {
		var renderErr *RenderError
		if errors.As(err, &renderErr) {
			return nil, renderErr
		}
		return nil, &RenderError{Message: "poll job", JobID: id, Cause: err}
	}

	switch {
	case job == nil || !job.Status.Terminal():
		return nil, &RenderError{Message: msgTimeout, JobID: id}
	case job.Status == StatusError:
		return nil, &RenderError{Message: fmt.Sprintf("job reported %q", job.RawStatus), JobID: id}
	case job.ResultURL == "":
		return nil, &RenderError{Message: "job done without result url", JobID: id}
	}

	c.logger.WithFields(logging.Fields{"job_id": id, "polls": polls}).Info("render job done")
	return job, nil
}

func (c *Client) report(job Job) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(job)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
