package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocial accepts a session when its auth_token matches validToken.
type fakeSocial struct {
	validToken  string
	loginToken  string
	loginStatus int
	postStatus  int
	postBody    string

	mu         sync.Mutex
	verifies   int
	logins     []loginRequest
	posts      int
	postedText string
	postedType string
	postedLen  int
	csrf       string
}

func (f *fakeSocial) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /1.1/account/verify_credentials.json", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.verifies++
		f.mu.Unlock()
		c, err := r.Cookie(CookieAuthToken)
		if err != nil || c.Value != f.validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"screen_name":"neonet"}`)
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode login: %v", err)
		}
		f.mu.Lock()
		f.logins = append(f.logins, req)
		f.mu.Unlock()
		if f.loginStatus != 0 {
			w.WriteHeader(f.loginStatus)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: CookieAuthToken, Value: f.loginToken, HttpOnly: true, Secure: true})
		http.SetCookie(w, &http.Cookie{Name: CookieCSRF, Value: "fresh-ct0", Secure: true})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /2/posts", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.posts++
		f.csrf = r.Header.Get("x-csrf-token")
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f.postedText = r.FormValue("text")
		file, header, err := r.FormFile("media")
		if err == nil {
			data, _ := io.ReadAll(file)
			f.postedLen = len(data)
			f.postedType = header.Header.Get("Content-Type")
		}
		status := f.postStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		fmt.Fprint(w, f.postBody)
	})
	return mux
}

type memStore struct {
	saved   map[string][]string
	loadErr error
	saveErr error
}

func (m *memStore) LoadSessionCookies(_ context.Context, account string) ([]string, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.saved[account], nil
}

func (m *memStore) SaveSessionCookies(_ context.Context, account string, cookies []string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.saved == nil {
		m.saved = map[string][]string{}
	}
	m.saved[account] = cookies
	return nil
}

var fixedNow = func() time.Time { return time.Unix(1111111109, 0) }

func newPublisher(url string, mutate func(*Options)) *Publisher {
	opts := Options{
		APIURL:  url,
		Cookies: SessionCookies{AuthToken: "cookie-token", CSRFToken: "cfg-ct0", GuestID: "v1%3A123"},
		Credentials: Credentials{
			Username:        "neonet",
			Password:        "hunter2",
			Email:           "neo@example.com",
			TwoFactorSecret: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ",
		},
		Now: fixedNow,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewPublisher(opts)
}

func TestPublish_CookieSession(t *testing.T) {
	social := &fakeSocial{validToken: "cookie-token", postBody: `{"data":{"id":"1790000000000000001","text":"hi"}}`}
	server := httptest.NewServer(social.handler(t))
	defer server.Close()

	res, err := newPublisher(server.URL, nil).Publish(context.Background(), []byte("mp4data"), "The grid hums.")
	require.NoError(t, err)

	assert.Equal(t, "1790000000000000001", res.PostID)
	assert.Empty(t, social.logins, "credential login must not run when cookies work")
	assert.Equal(t, "The grid hums.", social.postedText)
	assert.Equal(t, "video/mp4", social.postedType)
	assert.Equal(t, 7, social.postedLen)
	assert.Equal(t, "cfg-ct0", social.csrf)
	assert.JSONEq(t, `{"data":{"id":"1790000000000000001","text":"hi"}}`, string(res.Raw))
}

func TestPublish_CredentialFallback(t *testing.T) {
	social := &fakeSocial{validToken: "fresh-token", loginToken: "fresh-token", postBody: `{"tweet_id":"42"}`}
	server := httptest.NewServer(social.handler(t))
	defer server.Close()

	store := &memStore{}
	p := newPublisher(server.URL, func(o *Options) { o.Store = store })

	res, err := p.Publish(context.Background(), []byte("mp4"), "text")
	require.NoError(t, err)
	assert.Equal(t, "42", res.PostID)

	require.Len(t, social.logins, 1)
	assert.Equal(t, "neonet", social.logins[0].Username)
	assert.Equal(t, "neo@example.com", social.logins[0].Email)
	assert.Equal(t, "081804", social.logins[0].OTP)
	assert.Equal(t, "fresh-ct0", social.csrf, "login cookies replace configured ones by name")

	saved := store.saved["neonet"]
	require.NotEmpty(t, saved)
	first, err := ParseCookie(saved[0])
	require.NoError(t, err)
	assert.Equal(t, CookieAuthToken, first.Name)
	assert.Equal(t, "fresh-token", first.Value)
}

func TestPublish_SavedSessionPreferred(t *testing.T) {
	social := &fakeSocial{validToken: "saved-token", postBody: `{"id":"7"}`}
	server := httptest.NewServer(social.handler(t))
	defer server.Close()

	saved := Cookie{Name: CookieAuthToken, Value: "saved-token", Domain: ".twitter.com", Path: "/", Secure: true, HTTPOnly: true}
	store := &memStore{saved: map[string][]string{"neonet": {saved.String()}}}
	p := newPublisher(server.URL, func(o *Options) { o.Store = store })

	res, err := p.Publish(context.Background(), []byte("mp4"), "text")
	require.NoError(t, err)
	assert.Equal(t, "7", res.PostID)
	assert.Empty(t, social.logins)
}

func TestPublish_StoreErrorsAreNotFatal(t *testing.T) {
	social := &fakeSocial{validToken: "fresh-token", loginToken: "fresh-token", postBody: `{"id":"8"}`}
	server := httptest.NewServer(social.handler(t))
	defer server.Close()

	store := &memStore{loadErr: errors.New("db down"), saveErr: errors.New("db down")}
	p := newPublisher(server.URL, func(o *Options) { o.Store = store })

	res, err := p.Publish(context.Background(), []byte("mp4"), "text")
	require.NoError(t, err)
	assert.Equal(t, "8", res.PostID)
}

func TestPublish_AuthFailed(t *testing.T) {
	social := &fakeSocial{validToken: "nobody-has-this", loginStatus: http.StatusForbidden}
	server := httptest.NewServer(social.handler(t))
	defer server.Close()

	_, err := newPublisher(server.URL, nil).Publish(context.Background(), []byte("mp4"), "text")

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.True(t, pubErr.IsAuthFailure())
	assert.Equal(t, 0, social.posts)
}

func TestPublish_LoginSucceedsButSessionRejected(t *testing.T) {
	social := &fakeSocial{validToken: "other", loginToken: "fresh-token"}
	server := httptest.NewServer(social.handler(t))
	defer server.Close()

	_, err := newPublisher(server.URL, nil).Publish(context.Background(), []byte("mp4"), "text")
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.True(t, pubErr.IsAuthFailure())
	assert.Equal(t, 0, social.posts)
}

func TestPublish_NoCredentials(t *testing.T) {
	social := &fakeSocial{validToken: "other"}
	server := httptest.NewServer(social.handler(t))
	defer server.Close()

	p := newPublisher(server.URL, func(o *Options) { o.Credentials = Credentials{} })
	_, err := p.Publish(context.Background(), []byte("mp4"), "text")

	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.True(t, pubErr.IsAuthFailure())
	assert.Empty(t, social.logins)
}

func TestPublish_PostRejected(t *testing.T) {
	social := &fakeSocial{validToken: "cookie-token", postStatus: http.StatusForbidden, postBody: `{"data":{"id":"should-not-count"}}`}
	server := httptest.NewServer(social.handler(t))
	defer server.Close()

	_, err := newPublisher(server.URL, nil).Publish(context.Background(), []byte("mp4"), "text")
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, http.StatusForbidden, pubErr.StatusCode)
	assert.False(t, pubErr.IsAuthFailure())
}

func TestPublish_MissingPostID(t *testing.T) {
	social := &fakeSocial{validToken: "cookie-token", postBody: `{"data":{"text":"ok"}}`}
	server := httptest.NewServer(social.handler(t))
	defer server.Close()

	_, err := newPublisher(server.URL, nil).Publish(context.Background(), []byte("mp4"), "text")
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Contains(t, pubErr.Message, "no post id")
}

func TestPublish_EmptyMedia(t *testing.T) {
	_, err := newPublisher("http://unused.invalid", nil).Publish(context.Background(), nil, "text")
	var pubErr *PublishError
	assert.ErrorAs(t, err, &pubErr)
}

func TestExtractPostID(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"data":{"id":"1"}}`, "1"},
		{`{"id":"2"}`, "2"},
		{`{"post_id":"3"}`, "3"},
		{`{"tweet_id":"4"}`, "4"},
		{`{"rest_id":"5"}`, "5"},
		{`{"id":1790000000000000001}`, "1790000000000000001"},
	}
	for _, tt := range tests {
		got, err := extractPostID([]byte(tt.body))
		require.NoError(t, err, tt.body)
		assert.Equal(t, tt.want, got)
	}

	_, err := extractPostID([]byte(`{"ok":true}`))
	assert.Error(t, err)
	_, err = extractPostID([]byte(`not json`))
	assert.Error(t, err)
}
