package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  5,
		DefaultWindow: time.Minute,
		Whitelist:     map[string]bool{"10.0.0.1": true},
		EndpointConfigs: []EndpointConfig{
			{Path: "/run", Method: "POST", Limit: 2, Window: time.Hour, Burst: 2},
			{Path: "/posts/", Method: "GET", Limit: 3, Window: time.Minute},
			{Path: "/health", Method: "GET", Limit: 0},
		},
	}
}

func TestAllow_EndpointBurst(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 2; i++ {
		ok, info := l.Allow("1.2.3.4", "/run", "POST")
		require.True(t, ok, "request %d", i+1)
		assert.Equal(t, 2, info.Limit)
	}

	ok, info := l.Allow("1.2.3.4", "/run", "POST")
	assert.False(t, ok)
	assert.Greater(t, info.RetryAfter, time.Duration(0))

	// another client has its own bucket
	ok, _ = l.Allow("5.6.7.8", "/run", "POST")
	assert.True(t, ok)
}

func TestAllow_Refill(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, _ := l.Allow("c", "/run", "POST")
		require.True(t, ok)
	}
	ok, _ := l.Allow("c", "/run", "POST")
	require.False(t, ok)

	// one token per 30 minutes
	now = now.Add(31 * time.Minute)
	ok, _ = l.Allow("c", "/run", "POST")
	assert.True(t, ok)
	ok, _ = l.Allow("c", "/run", "POST")
	assert.False(t, ok)
}

func TestAllow_PrefixSharesBucket(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("c", "/posts/"+string(rune('a'+i)), "GET")
		require.True(t, ok)
	}
	ok, _ := l.Allow("c", "/posts/zzz", "GET")
	assert.False(t, ok)
}

func TestAllow_UnlimitedAndWhitelist(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 50; i++ {
		ok, _ := l.Allow("c", "/health", "GET")
		require.True(t, ok)
		ok, _ = l.Allow("10.0.0.1", "/run", "POST")
		require.True(t, ok)
	}
}

func TestAllow_Disabled(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Stop()
	for i := 0; i < 20; i++ {
		ok, _ := l.Allow("c", "/run", "POST")
		require.True(t, ok)
	}
}

func TestAllow_DefaultLimit(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 5; i++ {
		ok, _ := l.Allow("c", "/unknown", "GET")
		require.True(t, ok)
	}
	ok, _ := l.Allow("c", "/unknown", "GET")
	assert.False(t, ok)
}

func TestCleanup(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTTL = time.Minute
	l := NewLimiter(cfg)
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Allow("c", "/run", "POST")
	assert.Len(t, l.buckets, 1)

	now = now.Add(2 * time.Minute)
	l.cleanup()
	assert.Empty(t, l.buckets)
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()

	ec := MatchEndpoint("/run", "POST", configs)
	require.NotNil(t, ec)
	assert.Equal(t, 10, ec.Limit)

	ec = MatchEndpoint("/posts/123", "GET", configs)
	require.NotNil(t, ec)
	assert.Equal(t, "/posts/", ec.Path)

	assert.Nil(t, MatchEndpoint("/run", "GET", configs))
}

func TestLoadConfig(t *testing.T) {
	env := map[string]string{
		"RATE_LIMIT_DEFAULT_LIMIT": "42",
		"RATE_LIMIT_WHITELIST":     "10.0.0.1, 10.0.0.2",
	}
	cfg := LoadConfig(func(k string) string { return env[k] })
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 42, cfg.DefaultLimit)
	assert.Equal(t, time.Minute, cfg.DefaultWindow)
	assert.True(t, cfg.Whitelist["10.0.0.2"])

	cfg = LoadConfig(func(k string) string {
		if k == "RATE_LIMIT_ENABLED" {
			return "false"
		}
		return ""
	})
	assert.False(t, cfg.Enabled)
}
