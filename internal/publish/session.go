package publish

import "strings"

// AuthState tracks how far authentication has progressed for one publish.
type AuthState string

const (
	StateUnauthenticated         AuthState = "unauthenticated"
	StateCookieAuthAttempted     AuthState = "cookie-auth-attempted"
	StateCredentialAuthAttempted AuthState = "credential-auth-attempted"
	StateAuthenticated           AuthState = "authenticated"
	StateFailed                  AuthState = "failed"
)

// Session is the per-publish authentication state. It is built fresh for
// every publish attempt.
type Session struct {
	State   AuthState
	cookies []Cookie
}

func newSession(cookies []Cookie) *Session {
	s := &Session{State: StateUnauthenticated}
	for _, c := range cookies {
		s.Set(c)
	}
	return s
}

// Authenticated reports whether the session passed an auth check.
func (s *Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

// Set adds a cookie, replacing any cookie with the same name in place.
func (s *Session) Set(c Cookie) {
	for i := range s.cookies {
		if s.cookies[i].Name == c.Name {
			s.cookies[i] = c
			return
		}
	}
	s.cookies = append(s.cookies, c)
}

// Value returns the value of the named cookie, or "".
func (s *Session) Value(name string) string {
	for _, c := range s.cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Cookies returns a copy of the cookie set in insertion order.
func (s *Session) Cookies() []Cookie {
	return append([]Cookie(nil), s.cookies...)
}

// Serialized returns every cookie as a Set-Cookie style line.
func (s *Session) Serialized() []string {
	lines := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		lines = append(lines, c.String())
	}
	return lines
}

// header renders the Cookie request header.
func (s *Session) header() string {
	pairs := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		if c.Value == "" {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}
