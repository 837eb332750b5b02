// Package publish posts a rendered video to the social network. It
// authenticates with stored session cookies first and falls back to a
// credential login when the cookies are rejected.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/jonathan/newscaster/internal/logging"
	"github.com/sirupsen/logrus"
)

// DefaultAPIURL is the base of the social endpoint.
const DefaultAPIURL = "https://api.twitter.com"

// Credentials are used when cookie authentication fails.
type Credentials struct {
	Username        string
	Password        string
	Email           string
	TwoFactorSecret string
}

func (c Credentials) usable() bool {
	return c.Username != "" && c.Password != ""
}

// SessionStore persists session cookies between runs as serialized lines.
type SessionStore interface {
	LoadSessionCookies(ctx context.Context, account string) ([]string, error)
	SaveSessionCookies(ctx context.Context, account string, cookies []string) error
}

// Options configures a Publisher.
type Options struct {
	APIURL       string
	CookieDomain string
	Cookies      SessionCookies
	Credentials  Credentials
	// BearerToken is sent as Authorization on every request when set.
	BearerToken string

	// Store, when set, supplies cookies saved by an earlier run and receives
	// fresh cookies after a credential login.
	Store SessionStore

	HTTPClient *http.Client
	Logger     *logrus.Logger
	Now        func() time.Time
}

// Result is the outcome of a successful post.
type Result struct {
	PostID string
	Raw    json.RawMessage
}

// Publisher posts media with accompanying text.
type Publisher struct {
	opts   Options
	apiURL string
	http   *http.Client
	logger *logrus.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(opts Options) *Publisher {
	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if opts.CookieDomain == "" {
		opts.CookieDomain = DefaultCookieDomain
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Publisher{opts: opts, apiURL: apiURL, http: httpClient, logger: logger}
}

// Publish authenticates and posts text with one attached video.
func (p *Publisher) Publish(ctx context.Context, media []byte, text string) (*Result, error) {
	if len(media) == 0 {
		return nil, &PublishError{Message: "no media to publish"}
	}

	session, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return p.post(ctx, session, media, text)
}

// Authenticate runs the cookie-then-credentials state machine and returns an
// authenticated session.
func (p *Publisher) Authenticate(ctx context.Context) (*Session, error) {
	session := newSession(p.initialCookies(ctx))

	session.State = StateCookieAuthAttempted
	if ok, err := p.verify(ctx, session); ok {
		session.State = StateAuthenticated
		p.logger.Info("cookie session accepted")
		return session, nil
	} else if err != nil {
		p.logger.WithError(err).Warn("cookie session check failed")
	}

	if !p.opts.Credentials.usable() {
		session.State = StateFailed
		return nil, &PublishError{Message: msgAuthFailed, Cause: errors.New("cookies rejected and no credentials configured")}
	}

	p.logger.Info("cookie session rejected, logging in with credentials")
	session.State = StateCredentialAuthAttempted
	if err := p.login(ctx, session); err != nil {
		session.State = StateFailed
		return nil, &PublishError{Message: msgAuthFailed, Cause: err}
	}
	ok, err := p.verify(ctx, session)
	if !ok {
		session.State = StateFailed
		if err == nil {
			err = errors.New("session not authenticated after login")
		}
		return nil, &PublishError{Message: msgAuthFailed, Cause: err}
	}
	session.State = StateAuthenticated

	p.saveSession(ctx, session)
	return session, nil
}

func (p *Publisher) initialCookies(ctx context.Context) []Cookie {
	configured := p.opts.Cookies.Cookies(p.opts.CookieDomain)
	if p.opts.Store == nil {
		return configured
	}

	lines, err := p.opts.Store.LoadSessionCookies(ctx, p.account())
	if err != nil {
		p.logger.WithError(err).Warn("could not load saved session, using configured cookies")
		return configured
	}
	saved := make([]Cookie, 0, len(lines))
	for _, line := range lines {
		c, err := ParseCookie(line)
		if err != nil || c.Value == "" {
			continue
		}
		saved = append(saved, c)
	}
	if len(saved) == 0 {
		return configured
	}
	p.logger.WithField("cookies", len(saved)).Debug("using saved session cookies")
	return saved
}

func (p *Publisher) saveSession(ctx context.Context, session *Session) {
	cookies := session.Cookies()
	fields := logging.Fields{"cookies": len(cookies)}
	for _, c := range cookies {
		fields[c.Name] = logging.SanitizeToken(c.Value)
	}
	p.logger.WithFields(fields).Info("obtained fresh session cookies")

	if p.opts.Store == nil {
		return
	}
	if err := p.opts.Store.SaveSessionCookies(ctx, p.account(), session.Serialized()); err != nil {
		p.logger.WithError(err).Warn("could not save session cookies")
	}
}

func (p *Publisher) account() string {
	if p.opts.Credentials.Username != "" {
		return p.opts.Credentials.Username
	}
	return "default"
}

// verify reports whether the session is accepted by the endpoint.
func (p *Publisher) verify(ctx context.Context, session *Session) (bool, error) {
	if session.Value(CookieAuthToken) == "" {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/1.1/account/verify_credentials.json", nil)
	if err != nil {
		return false, err
	}
	p.decorate(req, session)

	resp, err := p.http.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	OTP      string `json:"otp,omitempty"`
}

func (p *Publisher) login(ctx context.Context, session *Session) error {
	creds := p.opts.Credentials
	otp, err := TOTP(creds.TwoFactorSecret, p.opts.Now())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(loginRequest{
		Username: creds.Username,
		Password: creds.Password,
		Email:    creds.Email,
		OTP:      otp,
	})
	if err != nil {
		return fmt.Errorf("encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.BearerToken)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("login rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	for _, hc := range resp.Cookies() {
		c := fromHTTPCookie(hc)
		if hc.Domain == "" {
			c.Domain = p.opts.CookieDomain
		}
		session.Set(c)
	}
	return nil
}

func (p *Publisher) post(ctx context.Context, session *Session, media []byte, text string) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("text", text); err != nil {
		return nil, &PublishError{Message: "encode post", Cause: err}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="media"; filename="video.mp4"`)
	header.Set("Content-Type", "video/mp4")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, &PublishError{Message: "encode post", Cause: err}
	}
	if _, err := part.Write(media); err != nil {
		return nil, &PublishError{Message: "encode post", Cause: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &PublishError{Message: "encode post", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/2/posts", &body)
	if err != nil {
		return nil, &PublishError{Message: "create post request", Cause: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	p.decorate(req, session)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, &PublishError{Message: "post request", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &PublishError{Message: "read post response", StatusCode: resp.StatusCode, Cause: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		p.logger.WithFields(logging.Fields{
			"status": resp.StatusCode,
			"body":   truncate(string(raw), 512),
		}).Error("post rejected")
		return nil, &PublishError{Message: "post rejected", StatusCode: resp.StatusCode}
	}

	id, err := extractPostID(raw)
	if err != nil {
		return nil, &PublishError{Message: "no post id in response", StatusCode: resp.StatusCode, Cause: err}
	}

	p.logger.WithField("post_id", id).Info("video posted")
	return &Result{PostID: id, Raw: json.RawMessage(raw)}, nil
}

func (p *Publisher) decorate(req *http.Request, session *Session) {
	if h := session.header(); h != "" {
		req.Header.Set("Cookie", h)
	}
	if csrf := session.Value(CookieCSRF); csrf != "" {
		req.Header.Set("x-csrf-token", csrf)
	}
	if p.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.BearerToken)
	}
}

var postIDKeys = []string{"id", "post_id", "tweet_id", "rest_id"}

// extractPostID finds the post identifier in data.<key> or <key>.
func extractPostID(raw []byte) (string, error) {
	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return "", fmt.Errorf("decode post response: %w", err)
	}
	if data, ok := body["data"].(map[string]any); ok {
		if id := firstID(data); id != "" {
			return id, nil
		}
	}
	if id := firstID(body); id != "" {
		return id, nil
	}
	return "", errors.New("response has no identifier field")
}

func firstID(m map[string]any) string {
	for _, key := range postIDKeys {
		switch v := m[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
