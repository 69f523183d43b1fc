package overrides

import (
	"log/slog"
	"net/http"

	"verifier/internal/admin"
	"verifier/internal/discord"
	"verifier/internal/web"
)

// Handler exposes the owner-only override switches and the emergency role
// removal endpoint.
type Handler struct {
	svc   *Service
	api   discord.API
	owner string
}

func NewHandler(svc *Service, api discord.API, ownerID string) *Handler {
	return &Handler{svc: svc, api: api, owner: ownerID}
}

func (h *Handler) Register(mux *http.ServeMux, owner *admin.Middleware) {
	mux.Handle("GET /override/all", owner.Enforce(http.HandlerFunc(h.handleGlobalGet)))
	mux.Handle("POST /override/all", owner.Enforce(http.HandlerFunc(h.handleGlobalSet(true))))
	mux.Handle("DELETE /override/all", owner.Enforce(http.HandlerFunc(h.handleGlobalSet(false))))
	mux.Handle("GET /override/{did}", owner.Enforce(http.HandlerFunc(h.handleUserGet)))
	mux.Handle("POST /override/{did}", owner.Enforce(http.HandlerFunc(h.handleUserSet(true))))
	mux.Handle("DELETE /override/{did}", owner.Enforce(http.HandlerFunc(h.handleUserSet(false))))
	mux.Handle("POST /remove_role_now/{did}", owner.Enforce(http.HandlerFunc(h.handleRemoveRole)))
	mux.Handle("GET /admin/overrides", owner.Enforce(http.HandlerFunc(h.handleAudit)))
}

func (h *Handler) handleGlobalGet(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "global_override": h.svc.Global()})
}

func (h *Handler) handleGlobalSet(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.svc.SetGlobal(r.Context(), on, h.owner)
		slog.InfoContext(r.Context(), "global override changed", "enabled", on)
		web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "global_override": on})
	}
}

func (h *Handler) handleUserGet(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "user_override": h.svc.ForUser(did), "discord_id": did})
}

func (h *Handler) handleUserSet(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		did := r.PathValue("did")
		h.svc.SetUser(r.Context(), did, on, h.owner)
		slog.InfoContext(r.Context(), "user override changed", "discord_id", did, "enabled", on)
		web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "user_override": on, "discord_id": did})
	}
}

func (h *Handler) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	did := r.PathValue("did")
	if err := h.api.RemoveRole(r.Context(), did); err != nil {
		slog.ErrorContext(r.Context(), "role removal failed", "discord_id", did, "error", err)
		web.JSON(w, r, http.StatusInternalServerError, map[string]any{"ok": false, "discord_id": did})
		return
	}
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "discord_id": did})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "overrides": h.svc.AuditLog()})
}
