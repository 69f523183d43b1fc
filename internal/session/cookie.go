package session

import (
	"errors"
	"net/http"
	"time"

	"verifier/internal/config"
)

// Cookies binds session IDs to the browser per the configured cookie settings.
type Cookies struct {
	cfg config.SessionConfig
}

func NewCookies(cfg config.SessionConfig) *Cookies {
	return &Cookies{cfg: cfg}
}

// SameSite=None is required for the cross-site flow: the static site and the
// verifier live on different hosts and the session cookie must survive the
// OAuth round trip. None requires Secure.
func (c *Cookies) sameSite() http.SameSite {
	if c.cfg.CookieDomain != "" && c.cfg.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (c *Cookies) Set(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   c.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: c.sameSite(),
		Expires:  time.Now().Add(Lifetime),
		MaxAge:   int(Lifetime / time.Second),
	})
}

func (c *Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: c.sameSite(),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// FromRequest resolves the session referenced by the request cookie.
func (c *Cookies) FromRequest(r *http.Request, storage *Storage) (*Session, error) {
	cookie, err := r.Cookie(c.cfg.CookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return storage.Get(r.Context(), cookie.Value)
}
