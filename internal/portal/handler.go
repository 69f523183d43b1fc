package portal

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"verifier/internal/config"
	"verifier/internal/discord"
	"verifier/internal/keys"
	"verifier/internal/overrides"
	"verifier/internal/session"
	"verifier/internal/web"
)

const (
	copiedLabel   = "Copied!"
	fallbackLabel = "Copied (fallback)"
)

// Handler serves the verify page, the OAuth flow, and the portal status API.
type Handler struct {
	cfg       *config.Config
	api       discord.API
	sessions  *session.Storage
	cookies   *session.Cookies
	overrides *overrides.Service
	keys      *keys.Storage
}

func NewHandler(cfg *config.Config, api discord.API, sessions *session.Storage, cookies *session.Cookies, svc *overrides.Service, keyStorage *keys.Storage) *Handler {
	return &Handler{
		cfg:       cfg,
		api:       api,
		sessions:  sessions,
		cookies:   cookies,
		overrides: svc,
		keys:      keyStorage,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleVerifyPage)
	mux.HandleFunc("GET /login/discord", h.handleLogin)
	mux.HandleFunc("GET /login/discord/callback", h.handleCallback)
	mux.HandleFunc("GET /login/browser-fallback", h.handleBrowserFallback)
	mux.HandleFunc("GET /portal/me", h.handleMe)
	mux.HandleFunc("GET /status/{did}", h.handleStatus)
	mux.HandleFunc("GET /logout", h.handleLogout)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /postback", h.handlePostback)
	mux.HandleFunc("POST /postback", h.handlePostback)
}

// handleVerifyPage renders the form controller page. A logged-in session
// prefills the input with the verified Discord ID.
func (h *Handler) handleVerifyPage(w http.ResponseWriter, r *http.Request) {
	data := verifyData{
		Target:             h.cfg.Portal.TargetURL,
		CopiedLabel:        copiedLabel,
		FallbackLabel:      fallbackLabel,
		RequireCopySuccess: h.cfg.Portal.RequireCopySuccess,
	}
	if sess, err := h.cookies.FromRequest(r, h.sessions); err == nil && sess.User != nil {
		data.DiscordID = sess.User.ID
		data.Username = sess.User.Username
		data.SignedIn = true
		// noscript path: same URL the script would build
		data.ContinueURL = AppendDiscordID(h.cfg.Portal.TargetURL, sess.User.ID)
	}
	if err := verifyTmpl.Execute(w, data); err != nil {
		slog.ErrorContext(r.Context(), "verify template execute error", "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.cfg.Mocks.Enable && !h.cfg.Discord.Enabled() {
		http.Error(w, "Discord client ID not configured", http.StatusInternalServerError)
		return
	}

	sess, err := h.cookies.FromRequest(r, h.sessions)
	if err != nil {
		if sess, err = h.sessions.Create(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to create session", "error", err)
			http.Error(w, "session error", http.StatusInternalServerError)
			return
		}
	}

	state, err := newState()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate oauth state", "error", err)
		http.Error(w, "state error", http.StatusInternalServerError)
		return
	}
	sess.OAuthState = state
	if err := h.sessions.Save(ctx, sess); err != nil {
		slog.ErrorContext(ctx, "failed to save session", "error", err)
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	h.cookies.Set(w, sess.ID)

	authURL := h.api.AuthorizeURL(state, h.redirectURI(r))
	slog.InfoContext(ctx, "starting discord login", "state", state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	sess, err := h.cookies.FromRequest(r, h.sessions)
	saved := ""
	if err == nil {
		saved = sess.OAuthState
	}
	slog.InfoContext(ctx, "oauth callback", "state_present", state != "", "saved_present", saved != "", "code_present", code != "")

	// A missing or mismatched state usually means the Discord app swallowed
	// the original tab. Send the user to the recovery page instead of a 400.
	if state == "" || saved == "" || subtle.ConstantTimeCompare([]byte(state), []byte(saved)) != 1 {
		slog.WarnContext(ctx, "invalid or expired oauth state, directing user to fallback")
		http.Redirect(w, r, "/login/browser-fallback", http.StatusFound)
		return
	}

	// state is single-use
	sess.OAuthState = ""
	if err := h.sessions.Save(ctx, sess); err != nil {
		slog.ErrorContext(ctx, "failed to clear oauth state", "error", err)
	}

	if code == "" {
		http.Error(w, "Missing code", http.StatusBadRequest)
		return
	}

	token, err := h.api.ExchangeCode(ctx, code, h.redirectURI(r))
	if err != nil {
		slog.WarnContext(ctx, "token exchange failed", "error", err)
		h.renderOutcome(w, r, http.StatusBadRequest, outcomeData{
			Heading:  "Login failed",
			Message:  "Discord did not accept the login. Please try again.",
			Home:     h.cfg.BaseURL,
			LinkText: "Return",
		})
		return
	}

	user, err := h.api.CurrentUser(ctx, token.AccessToken)
	if err != nil || !discord.ValidID(user.ID) {
		slog.WarnContext(ctx, "user lookup failed", "error", err)
		h.renderOutcome(w, r, http.StatusBadRequest, outcomeData{
			Heading:  "User lookup failed",
			Message:  "Discord did not return a usable account. Please try again.",
			Home:     h.cfg.BaseURL,
			LinkText: "Return",
		})
		return
	}

	banned := h.api.IsBanned(ctx, user.ID)
	member, memberErr := h.api.GuildMember(ctx, user.ID)
	isMember := memberErr == nil
	hasRole := isMember && h.api.HasRole(member)

	sess.User = &session.User{
		ID:            user.ID,
		Username:      user.Username,
		Discriminator: user.Discriminator,
		TS:            time.Now().Unix(),
	}
	if err := h.sessions.Save(ctx, sess); err != nil {
		slog.ErrorContext(ctx, "failed to persist session user", "error", err)
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	h.cookies.Set(w, sess.ID)
	slog.InfoContext(ctx, "session established", "discord_id", user.ID)

	if h.overrides.Granted(user.ID) && isMember && !hasRole {
		if err := h.api.AddRole(ctx, user.ID); err != nil {
			slog.ErrorContext(ctx, "role assignment on login failed", "discord_id", user.ID, "error", err)
		} else {
			hasRole = true
		}
	}

	switch {
	case banned:
		h.renderOutcome(w, r, http.StatusForbidden, outcomeData{
			Heading:  "Blocked",
			Message:  "Your account is banned from the server.",
			Home:     h.cfg.BaseURL,
			LinkText: "Return",
		})
	case !isMember:
		h.renderOutcome(w, r, http.StatusForbidden, outcomeData{
			Heading:  "Join required",
			Message:  "Please join the Discord server and try again.",
			Home:     h.cfg.BaseURL,
			LinkText: "Return",
		})
	case !hasRole:
		h.renderOutcome(w, r, http.StatusOK, outcomeData{
			Heading:  "Role missing",
			Message:  "Membership verified but the required role is missing.",
			Home:     h.cfg.BaseURL,
			LinkText: "Continue",
		})
	default:
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (h *Handler) handleBrowserFallback(w http.ResponseWriter, r *http.Request) {
	data := fallbackData{LoginURL: h.requestBaseURL(r) + "/login/discord"}
	if err := fallbackTmpl.Execute(w, data); err != nil {
		slog.ErrorContext(r.Context(), "fallback template execute error", "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, err := h.cookies.FromRequest(r, h.sessions)
	if err != nil || sess.User == nil {
		web.Fail(w, r, http.StatusUnauthorized, "Not logged in")
		return
	}
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "user": sess.User})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did := r.PathValue("did")
	if !discord.ValidID(did) {
		web.JSON(w, r, http.StatusBadRequest, map[string]any{"ok": false, "role_granted": false, "message": "Invalid ID format"})
		return
	}
	if h.overrides.Global() {
		web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "role_granted": true, "message": "GLOBAL OVERRIDE"})
		return
	}
	if h.overrides.ForUser(did) {
		web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "role_granted": true, "message": "ADMIN OVERRIDE"})
		return
	}

	if h.api.IsBanned(ctx, did) {
		web.JSON(w, r, http.StatusForbidden, map[string]any{"ok": false, "role_granted": false, "message": "Banned from server"})
		return
	}
	member, err := h.api.GuildMember(ctx, did)
	if err != nil {
		message := "Not in server"
		if !errors.Is(err, discord.ErrNotMember) {
			message = fmt.Sprintf("Member lookup error (%v)", err)
		}
		web.JSON(w, r, http.StatusNotFound, map[string]any{"ok": false, "role_granted": false, "message": message})
		return
	}
	has := h.api.HasRole(member)
	message := "Role missing"
	if has {
		message = "Role present"
	}
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "role_granted": has, "message": message})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, err := h.cookies.FromRequest(r, h.sessions); err == nil {
		if err := h.sessions.Delete(r.Context(), sess.ID); err != nil {
			slog.ErrorContext(r.Context(), "failed to delete session", "error", err)
		}
	}
	h.cookies.Clear(w)
	http.Redirect(w, r, h.cfg.BaseURL, http.StatusFound)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "ts": time.Now().Unix()})
}

func (h *Handler) renderOutcome(w http.ResponseWriter, r *http.Request, status int, data outcomeData) {
	w.WriteHeader(status)
	if err := outcomeTmpl.Execute(w, data); err != nil {
		slog.ErrorContext(r.Context(), "outcome template execute error", "error", err)
	}
}

// redirectURI prefers the configured override (it must match the Discord app
// settings exactly) and falls back to the callback on the requested host.
func (h *Handler) redirectURI(r *http.Request) string {
	if h.cfg.Discord.RedirectURI != "" {
		return h.cfg.Discord.RedirectURI
	}
	return h.requestBaseURL(r) + "/login/discord/callback"
}

func (h *Handler) requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
