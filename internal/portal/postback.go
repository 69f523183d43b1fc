package portal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"verifier/internal/discord"
	"verifier/internal/web"
)

type postbackPayload struct {
	TransactionID string `json:"transaction_id"`
	Tx            string `json:"tx"`
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	UID           string `json:"uid"`
	Status        string `json:"status"`
}

func (p postbackPayload) transaction() string {
	for _, v := range []string{p.TransactionID, p.Tx, p.ID} {
		if v != "" {
			return v
		}
	}
	return fmt.Sprintf("tx-%d", time.Now().Unix())
}

func (p postbackPayload) user() string {
	if p.UserID != "" {
		return p.UserID
	}
	return p.UID
}

func (p postbackPayload) completed() bool {
	switch strings.ToLower(p.Status) {
	case "completed", "success", "ok":
		return true
	}
	return false
}

// handlePostback is the tracking-network webhook: a completed transaction
// auto-issues a key for the user. Webhooks expect 200, so processing errors
// are logged and swallowed.
func (h *Handler) handlePostback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload postbackPayload
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		payload = postbackPayload{
			TransactionID: q.Get("transaction_id"),
			Tx:            q.Get("tx"),
			UserID:        q.Get("user_id"),
			UID:           q.Get("uid"),
			Status:        q.Get("status"),
		}
		if payload.Status == "" {
			payload.Status = "unknown"
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			payload = postbackPayload{Status: "unknown"}
		}
	}

	tx := payload.transaction()
	slog.InfoContext(ctx, "postback received", "tx", tx, "status", payload.Status, "method", r.Method)

	if payload.completed() {
		// The sender is unauthenticated, so the user ID gets the same
		// validation as every other entry point before it touches storage.
		if user := payload.user(); !discord.ValidID(user) {
			slog.WarnContext(ctx, "postback carried unusable user id", "tx", tx)
		} else if _, err := h.keys.Issue(ctx, user); err != nil {
			slog.WarnContext(ctx, "postback key issue failed", "tx", tx, "error", err)
		}
	}

	web.JSON(w, r, http.StatusOK, map[string]any{"ok": true, "tx": tx})
}
