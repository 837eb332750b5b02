package publish

import (
	"fmt"
	"net/http"
	"strings"
)

// Session cookie names.
const (
	CookieAuthToken = "auth_token"
	CookieCSRF      = "ct0"
	CookieGuestID   = "guest_id"
)

// DefaultCookieDomain is the domain every session cookie is scoped to.
const DefaultCookieDomain = ".twitter.com"

// Cookie is one session cookie with its explicit attributes.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
}

// String serializes the cookie as a Set-Cookie style line.
func (c Cookie) String() string {
	parts := []string{
		fmt.Sprintf("%s=%s", c.Name, c.Value),
		"Domain=" + c.Domain,
		"Path=" + c.Path,
	}
	if c.Secure {
		parts = append(parts, "Secure")
	}
	if c.HTTPOnly {
		parts = append(parts, "HttpOnly")
	}
	parts = append(parts, "SameSite=Lax")
	return strings.Join(parts, "; ")
}

// ParseCookie reads a line produced by Cookie.String or a Set-Cookie header.
func ParseCookie(line string) (Cookie, error) {
	hc, err := http.ParseSetCookie(line)
	if err != nil {
		return Cookie{}, fmt.Errorf("parse cookie: %w", err)
	}
	return fromHTTPCookie(hc), nil
}

func fromHTTPCookie(hc *http.Cookie) Cookie {
	domain := hc.Domain
	if domain != "" && !strings.HasPrefix(domain, ".") {
		domain = "." + domain
	}
	if domain == "" {
		domain = DefaultCookieDomain
	}
	path := hc.Path
	if path == "" {
		path = "/"
	}
	return Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   domain,
		Path:     path,
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
	}
}

// SessionCookies holds the configured values of the three session cookies.
type SessionCookies struct {
	AuthToken string
	CSRFToken string
	GuestID   string
}

// Cookies builds the cookie set, skipping cookies with empty values.
func (s SessionCookies) Cookies(domain string) []Cookie {
	if domain == "" {
		domain = DefaultCookieDomain
	}
	all := []Cookie{
		{Name: CookieAuthToken, Value: s.AuthToken, Domain: domain, Path: "/", Secure: true, HTTPOnly: true},
		{Name: CookieCSRF, Value: s.CSRFToken, Domain: domain, Path: "/", Secure: true},
		{Name: CookieGuestID, Value: s.GuestID, Domain: domain, Path: "/", Secure: true},
	}
	out := make([]Cookie, 0, len(all))
	for _, c := range all {
		if strings.TrimSpace(c.Value) != "" {
			out = append(out, c)
		}
	}
	return out
}
