package tokenstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultCookieTTL matches the lifetime the web client gives the token cookie.
const DefaultCookieTTL = 30 * 24 * time.Hour

// CookieBackend mirrors the token into a cookie jar scoped to the API origin.
type CookieBackend struct {
	jar    http.CookieJar
	origin *url.URL
	name   string
	ttl    time.Duration
	secure bool
	clock  func() time.Time
}

// CookieOptions configures a CookieBackend.
type CookieOptions struct {
	Name   string
	TTL    time.Duration
	Secure bool
	Clock  func() time.Time
}

// NewCookieBackend builds a backend writing into jar for origin.
func NewCookieBackend(jar http.CookieJar, origin *url.URL, opts CookieOptions) *CookieBackend {
	if opts.Name == "" {
		opts.Name = "token"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCookieTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &CookieBackend{
		jar:    jar,
		origin: origin,
		name:   opts.Name,
		ttl:    opts.TTL,
		secure: opts.Secure,
		clock:  opts.Clock,
	}
}

func (c *CookieBackend) Name() string { return "cookie" }

func (c *CookieBackend) Get(_ context.Context) (string, error) {
	if c.jar == nil || c.origin == nil {
		return "", ErrBackendUnavailable
	}
	for _, ck := range c.jar.Cookies(c.origin) {
		if ck.Name == c.name {
			return ck.Value, nil
		}
	}
	return "", nil
}

func (c *CookieBackend) Set(_ context.Context, token string) error {
	if c.jar == nil || c.origin == nil {
		return ErrBackendUnavailable
	}
	// A jar never returns a Secure cookie to a plain http origin.
	if c.secure && c.origin.Scheme != "https" {
		return fmt.Errorf("%w: secure cookie on %s origin", ErrBackendUnavailable, c.origin.Scheme)
	}
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		Expires:  c.clock().Add(c.ttl),
		MaxAge:   int(c.ttl / time.Second),
		Secure:   c.secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}})
	return nil
}

func (c *CookieBackend) Delete(_ context.Context) error {
	if c.jar == nil || c.origin == nil {
		return ErrBackendUnavailable
	}
	c.jar.SetCookies(c.origin, []*http.Cookie{{
		Name:   c.name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
	return nil
}
