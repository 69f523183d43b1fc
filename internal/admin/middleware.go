package admin

import (
	"net/http"

	"verifier/internal/session"
	"verifier/internal/web"
)

// Middleware restricts a handler to the configured owner account.
type Middleware struct {
	ownerID  string
	sessions *session.Storage
	cookies  *session.Cookies
}

func New(ownerID string, sessions *session.Storage, cookies *session.Cookies) *Middleware {
	return &Middleware{
		ownerID:  ownerID,
		sessions: sessions,
		cookies:  cookies,
	}
}

func (m *Middleware) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.ownerID == "" {
			web.Fail(w, r, http.StatusForbidden, "Forbidden")
			return
		}
		sess, err := m.cookies.FromRequest(r, m.sessions)
		if err != nil || sess.User == nil || sess.User.ID != m.ownerID {
			web.Fail(w, r, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
