package sessionstore

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/errors/v5"
	"github.com/gorilla/securecookie"
)

// CookieLife is the fixed expiry horizon of the session cookie.
const CookieLife = 30 * 24 * time.Hour

var _ Store = &Cookie{}

// Cookie stores values as cookies in an http.CookieJar scoped to the
// platform's site. Each key maps to one cookie of the same name, written
// with Path=/ and SameSite=Lax so it survives normal top-level navigation
// but is not sent on cross-site requests.
//
// A nil jar models a host without a cookie medium (server-side rendering):
// every read reports absent and every write is a no-op.
type Cookie struct {
	jar   http.CookieJar
	site  *url.URL
	codec *securecookie.SecureCookie
}

// CookieOption configures a Cookie store.
type CookieOption func(*Cookie)

// WithSecureCodec signs and encodes cookie values with the given codec
// instead of storing the plain payload. Opt-in; the wire default is the
// URL-escaped JSON payload other clients already read and write.
func WithSecureCodec(codec *securecookie.SecureCookie) CookieOption {
	return func(c *Cookie) {
		c.codec = codec
	}
}

// NewCookie returns a store backed by jar, scoped to site.
func NewCookie(jar http.CookieJar, site *url.URL, options ...CookieOption) *Cookie {
	c := &Cookie{jar: jar, site: site}
	for _, opt := range options {
		opt(c)
	}

	return c
}

func (c *Cookie) Get(key string) (string, bool) {
	if c.jar == nil {
		return "", false
	}

	for _, cookie := range c.jar.Cookies(c.site) {
		if cookie.Name != key || cookie.Value == "" {
			continue
		}

		value, err := c.decode(key, cookie.Value)
		if err != nil {
			// Undecodable cookies read as absent; the caller resets to
			// logged-out rather than failing.
			return "", false
		}

		return value, true
	}

	return "", false
}

func (c *Cookie) Set(key, value string) error {
	if c.jar == nil {
		return nil
	}

	encoded, err := c.encode(key, value)
	if err != nil {
		return errors.Wrap(err, "sessionstore.Cookie.encode()")
	}

	c.jar.SetCookies(c.site, []*http.Cookie{{
		Name:     key,
		Value:    encoded,
		Path:     "/",
		Expires:  time.Now().Add(CookieLife),
		MaxAge:   int(CookieLife / time.Second),
		SameSite: http.SameSiteLaxMode,
	}})

	return nil
}

func (c *Cookie) Remove(key string) error {
	if c.jar == nil {
		return nil
	}

	c.jar.SetCookies(c.site, []*http.Cookie{{
		Name:     key,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(1, 0),
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	}})

	return nil
}

func (c *Cookie) encode(key, value string) (string, error) {
	if c.codec != nil {
		encoded, err := c.codec.Encode(key, value)
		if err != nil {
			return "", errors.Wrap(err, "securecookie.Encode()")
		}

		return encoded, nil
	}

	// JSON payloads carry characters a cookie value cannot.
	return url.QueryEscape(value), nil
}

func (c *Cookie) decode(key, raw string) (string, error) {
	if c.codec != nil {
		var value string
		if err := c.codec.Decode(key, raw, &value); err != nil {
			return "", errors.Wrap(err, "securecookie.Decode()")
		}

		return value, nil
	}

	value, err := url.QueryUnescape(raw)
	if err != nil {
		return "", errors.Wrap(err, "url.QueryUnescape()")
	}

	return value, nil
}
