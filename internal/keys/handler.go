package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"

	"verifier/internal/admin"
	"verifier/internal/discord"
	"verifier/internal/overrides"
	"verifier/internal/session"
	"verifier/internal/web"
)

// Handler exposes key issue, validation, listing, and revocation.
type Handler struct {
	storage   *Storage
	api       discord.API
	overrides *overrides.Service
	sessions  *session.Storage
	cookies   *session.Cookies
}

func NewHandler(storage *Storage, api discord.API, svc *overrides.Service, sessions *session.Storage, cookies *session.Cookies) *Handler {
	return &Handler{
		storage:   storage,
		api:       api,
		overrides: svc,
		sessions:  sessions,
		cookies:   cookies,
	}
}

func (h *Handler) Register(mux *http.ServeMux, owner *admin.Middleware) {
	mux.HandleFunc("POST /generate_key", h.handleGenerate)
	mux.HandleFunc("GET /validate_key/{did}/{key}", h.handleValidate)
	mux.HandleFunc("POST /validate_key/{did}/{key}", h.handleValidate)
	mux.HandleFunc("GET /keys", h.handleList)
	mux.Handle("POST /keys/burn", owner.Enforce(http.HandlerFunc(h.handleBurn)))
	mux.Handle("GET /admin/keys", owner.Enforce(http.HandlerFunc(h.handleAdminList)))
}

// handleGenerate issues a key for the logged-in user. The caller must be a
// guild member and either carry the role or be covered by an override.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.cookies.FromRequest(r, h.sessions)
	if err != nil || sess.User == nil {
		web.Fail(w, r, http.StatusUnauthorized, "Not logged in")
		return
	}
	did := sess.User.ID
	if !discord.ValidID(did) {
		web.Fail(w, r, http.StatusBadRequest, "Invalid user ID")
		return
	}

	member, err := h.api.GuildMember(ctx, did)
	if err != nil {
		web.Fail(w, r, http.StatusForbidden, "Join the server before requesting a key")
		return
	}
	if !h.api.HasRole(member) && !h.overrides.Granted(did) {
		web.Fail(w, r, http.StatusForbidden, "Required role missing")
		return
	}

	key, err := h.storage.Issue(ctx, did)
	if err != nil {
		if errors.Is(err, ErrActiveKeyExists) {
			web.Fail(w, r, http.StatusConflict, "Active key already exists. Use it first.")
			return
		}
		slog.ErrorContext(ctx, "key issue failed", "discord_id", did, "error", err)
		web.Fail(w, r, http.StatusInternalServerError, "Key issue failed")
		return
	}

	slog.InfoContext(ctx, "key issued", "discord_id", did)
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "key": key.Value})
}

func validationFailure(w http.ResponseWriter, r *http.Request, status int, message string) {
	web.JSON(w, r, status, map[string]any{"ok": false, "valid": false, "message": message})
}

// handleValidate is the endpoint the downloader calls to consume a key.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did := r.PathValue("did")
	value := r.PathValue("key")

	if !discord.ValidID(did) {
		validationFailure(w, r, http.StatusBadRequest, "Invalid ID format")
		return
	}
	if !WellFormed(did, value) {
		validationFailure(w, r, http.StatusBadRequest, "Malformed key")
		return
	}
	if h.api.IsBanned(ctx, did) {
		validationFailure(w, r, http.StatusForbidden, "Banned from server")
		return
	}

	member, err := h.api.GuildMember(ctx, did)
	if err != nil {
		if errors.Is(err, discord.ErrNotMember) {
			validationFailure(w, r, http.StatusNotFound, "Not in server")
			return
		}
		validationFailure(w, r, http.StatusBadGateway, fmt.Sprintf("Member lookup error (%v)", err))
		return
	}
	if !h.api.HasRole(member) && !h.overrides.Granted(did) {
		validationFailure(w, r, http.StatusForbidden, "Role missing")
		return
	}

	switch err := h.storage.Consume(ctx, did, value); {
	case err == nil:
		slog.InfoContext(ctx, "key consumed", "discord_id", did)
		web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "valid": true, "message": "Key valid and consumed"})
	case errors.Is(err, ErrNoKey):
		validationFailure(w, r, http.StatusNotFound, "No key issued for this user")
	case errors.Is(err, ErrKeyUsed):
		validationFailure(w, r, http.StatusGone, "Key already used")
	case errors.Is(err, ErrKeyExpired):
		validationFailure(w, r, http.StatusGone, "Key expired")
	case errors.Is(err, ErrKeyRevoked):
		validationFailure(w, r, http.StatusGone, "Key revoked")
	case errors.Is(err, ErrKeyMismatch):
		validationFailure(w, r, http.StatusBadRequest, "Incorrect key")
	default:
		slog.ErrorContext(ctx, "key consume failed", "discord_id", did, "error", err)
		validationFailure(w, r, http.StatusInternalServerError, "Failed to consume key")
	}
}

type keyView struct {
	Key       string `json:"key"`
	Used      bool   `json:"used"`
	Revoked   bool   `json:"revoked"`
	Expired   bool   `json:"expired"`
	CreatedAt int64  `json:"created_at"`
	UsedAt    *int64 `json:"used_at"`
	ExpiresAt int64  `json:"expires_at"`
	ExpiresIn int64  `json:"expires_in"`
}

func view(k Key, now time.Time) keyView {
	expiresIn := k.ExpiresAt - now.Unix()
	if expiresIn < 0 {
		expiresIn = 0
	}
	return keyView{
		Key:       k.Value,
		Used:      k.Used,
		Revoked:   k.Revoked,
		Expired:   k.Expired(now),
		CreatedAt: k.CreatedAt,
		UsedAt:    k.UsedAt,
		ExpiresAt: k.ExpiresAt,
		ExpiresIn: expiresIn,
	}
}

// handleList returns the logged-in user's key record.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.cookies.FromRequest(r, h.sessions)
	if err != nil || sess.User == nil {
		web.Fail(w, r, http.StatusUnauthorized, "Not authenticated")
		return
	}

	records := []keyView{}
	if key, err := h.storage.Get(ctx, sess.User.ID); err == nil {
		records = append(records, view(*key, time.Now()))
	} else if !errors.Is(err, ErrNoKey) {
		slog.ErrorContext(ctx, "key lookup failed", "discord_id", sess.User.ID, "error", err)
		web.Fail(w, r, http.StatusInternalServerError, "Key lookup failed")
		return
	}
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "keys": records})
}

func (h *Handler) handleAdminList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.storage.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "key list failed", "error", err)
		web.Fail(w, r, http.StatusInternalServerError, "Key list failed")
		return
	}
	now := time.Now()
	views := lo.Map(records, func(k Key, _ int) keyView { return view(k, now) })
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "keys": views})
}

func (h *Handler) handleBurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		DiscordID string `json:"discord_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DiscordID == "" {
		web.Fail(w, r, http.StatusBadRequest, "No discord_id provided")
		return
	}
	if err := h.storage.Burn(ctx, body.DiscordID); err != nil {
		if errors.Is(err, ErrNoKey) {
			web.Fail(w, r, http.StatusNotFound, "Key not found")
			return
		}
		slog.ErrorContext(ctx, "key burn failed", "discord_id", body.DiscordID, "error", err)
		web.Fail(w, r, http.StatusInternalServerError, "Key burn failed")
		return
	}
	slog.InfoContext(ctx, "key burned", "discord_id", body.DiscordID)
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "message": fmt.Sprintf("Key for %s burned", body.DiscordID)})
}
