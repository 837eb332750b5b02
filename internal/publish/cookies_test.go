package publish

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieString(t *testing.T) {
	c := Cookie{Name: "auth_token", Value: "abc", Domain: ".twitter.com", Path: "/", Secure: true, HTTPOnly: true}
	assert.Equal(t, "auth_token=abc; Domain=.twitter.com; Path=/; Secure; HttpOnly; SameSite=Lax", c.String())

	c = Cookie{Name: "ct0", Value: "xyz", Domain: ".twitter.com", Path: "/", Secure: true}
	assert.Equal(t, "ct0=xyz; Domain=.twitter.com; Path=/; Secure; SameSite=Lax", c.String())
}

func TestParseCookieRoundTrip(t *testing.T) {
	orig := Cookie{Name: "auth_token", Value: "abc", Domain: ".twitter.com", Path: "/", Secure: true, HTTPOnly: true}
	parsed, err := ParseCookie(orig.String())
	require.NoError(t, err)
	assert.Equal(t, orig, parsed)
}

func TestSessionCookies_SkipsEmpty(t *testing.T) {
	cookies := SessionCookies{AuthToken: "tok", GuestID: "  "}.Cookies("")
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieAuthToken, cookies[0].Name)
	assert.True(t, cookies[0].HTTPOnly)
	assert.Equal(t, DefaultCookieDomain, cookies[0].Domain)
}

func TestSession_SetReplacesByName(t *testing.T) {
	s := newSession([]Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})
	s.Set(Cookie{Name: "a", Value: "3"})
	s.Set(Cookie{Name: "c", Value: "4"})

	assert.Equal(t, "3", s.Value("a"))
	assert.Equal(t, "a=3; b=2; c=4", s.header())
	assert.Len(t, s.Serialized(), 3)
	assert.False(t, s.Authenticated())
}

func TestTOTP_RFC6238Vectors(t *testing.T) {
	// base32 of the ASCII secret "12345678901234567890"
	secret := "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	tests := map[int64]string{
		59:         "287082",
		1111111109: "081804",
		1234567890: "005924",
		2000000000: "279037",
	}
	for unix, want := range tests {
		got, err := TOTP(secret, time.Unix(unix, 0))
		require.NoError(t, err)
		assert.Equal(t, want, got, "t=%d", unix)
	}
}

func TestTOTP_EmptyAndInvalid(t *testing.T) {
	code, err := TOTP("", time.Now())
	require.NoError(t, err)
	assert.Empty(t, code)

	_, err = TOTP("not base32!", time.Now())
	assert.Error(t, err)
}
