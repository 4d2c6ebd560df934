package session

import (
	"net/http"
	"time"
)

// Cookie is the persisted form of one cookie set by the backend.
//
// Expires is a unix timestamp in seconds; zero marks a session cookie that
// lives until the store forgets it.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  int64
	Secure   bool
	HttpOnly bool
	SameSite uint8
}

// FromHTTP converts c, resolving MaxAge against now.
func FromHTTP(c *http.Cookie, now time.Time) Cookie {
	out := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: uint8(c.SameSite),
	}
	switch {
	case c.MaxAge > 0:
		out.Expires = now.Add(time.Duration(c.MaxAge) * time.Second).Unix()
	case !c.Expires.IsZero():
		out.Expires = c.Expires.Unix()
	}
	return out
}

// HTTP converts the record back for cookiejar.SetCookies.
func (c Cookie) HTTP() *http.Cookie {
	out := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: http.SameSite(c.SameSite),
	}
	if c.Expires > 0 {
		out.Expires = time.Unix(c.Expires, 0)
	}
	return out
}

// Expired reports whether the cookie is past its expiry at now.
func (c Cookie) Expired(now time.Time) bool {
	return c.Expires > 0 && c.Expires <= now.Unix()
}

func (c Cookie) key() string {
	return c.Name + "\x00" + c.Path + "\x00" + c.Domain
}

// deletes reports whether c, as received from the server, removes the cookie.
func deletes(c *http.Cookie, now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	return c.MaxAge == 0 && !c.Expires.IsZero() && !c.Expires.After(now)
}
