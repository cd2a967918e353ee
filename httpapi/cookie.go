package httpapi

import (
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// CookieBuilder shapes the session cookie from CookieConfig.
type CookieBuilder struct {
	cfg goSession.CookieConfig
}

func NewCookieBuilder(cfg goSession.CookieConfig) CookieBuilder {
	return CookieBuilder{cfg: cfg}
}

// Session returns the cookie carrying token for maxAge seconds. Embedded
// contexts get SameSite=None with Partitioned; everything else gets Lax.
func (b CookieBuilder) Session(token string, maxAge int) *http.Cookie {
	c := b.base()
	c.Value = token
	c.MaxAge = maxAge
	return c
}

// Clear returns a cookie that deletes the session cookie.
func (b CookieBuilder) Clear() *http.Cookie {
	c := b.base()
	c.MaxAge = -1
	return c
}

func (b CookieBuilder) base() *http.Cookie {
	path := b.cfg.Path
	if path == "" {
		path = "/"
	}
	c := &http.Cookie{
		Name:     b.cfg.Name,
		Domain:   b.cfg.Domain,
		Path:     path,
		Secure:   b.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if b.cfg.Embedded {
		c.SameSite = http.SameSiteNoneMode
		c.Secure = true
		c.Partitioned = true
	}
	return c
}
