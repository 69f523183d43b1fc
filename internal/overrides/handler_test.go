package overrides

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"verifier/internal/admin"
	"verifier/internal/config"
	"verifier/internal/discord"
	"verifier/internal/session"
	"verifier/internal/store"
)

type overridesFixture struct {
	mux      *http.ServeMux
	svc      *Service
	sessions *session.Storage
}

func newOverridesFixture(t *testing.T) *overridesFixture {
	t.Helper()
	st := store.NewInMemoryStore()
	sessions := session.NewStorage(st)
	cookies := session.NewCookies(config.SessionConfig{CookieName: "verifier_session"})
	svc, err := NewService(context.Background(), st)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	mux := http.NewServeMux()
	NewHandler(svc, discord.NewMock(), actorID).Register(mux, admin.New(actorID, sessions, cookies))
	return &overridesFixture{mux: mux, svc: svc, sessions: sessions}
}

func (f *overridesFixture) ownerCookie(t *testing.T) *http.Cookie {
	t.Helper()
	ctx := context.Background()
	sess, err := f.sessions.Create(ctx)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	sess.User = &session.User{ID: actorID, Username: "owner"}
	if err := f.sessions.Save(ctx, sess); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
	return &http.Cookie{Name: "verifier_session", Value: sess.ID}
}

func (f *overridesFixture) do(t *testing.T, method, target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestOverrideEndpointsRequireOwner(t *testing.T) {
	f := newOverridesFixture(t)
	for _, target := range []string{"/override/all", "/override/" + userID, "/admin/overrides"} {
		if rec := f.do(t, http.MethodGet, target, nil); rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 without session, got %d", target, rec.Code)
		}
	}
}

func TestGlobalOverrideLifecycle(t *testing.T) {
	f := newOverridesFixture(t)
	cookie := f.ownerCookie(t)

	if rec := f.do(t, http.MethodPost, "/override/all", cookie); rec.Code != http.StatusOK {
		t.Fatalf("set failed: %d", rec.Code)
	}
	if !f.svc.Global() {
		t.Fatalf("expected global override set")
	}

	rec := f.do(t, http.MethodGet, "/override/all", cookie)
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["global_override"] != true {
		t.Fatalf("expected global_override=true, got %v", body)
	}

	if rec := f.do(t, http.MethodDelete, "/override/all", cookie); rec.Code != http.StatusOK {
		t.Fatalf("clear failed: %d", rec.Code)
	}
	if f.svc.Global() {
		t.Fatalf("expected global override cleared")
	}
}

func TestUserOverrideLifecycle(t *testing.T) {
	f := newOverridesFixture(t)
	cookie := f.ownerCookie(t)

	if rec := f.do(t, http.MethodPost, "/override/"+userID, cookie); rec.Code != http.StatusOK {
		t.Fatalf("set failed: %d", rec.Code)
	}
	if !f.svc.ForUser(userID) {
		t.Fatalf("expected user override set")
	}
	if rec := f.do(t, http.MethodDelete, "/override/"+userID, cookie); rec.Code != http.StatusOK {
		t.Fatalf("clear failed: %d", rec.Code)
	}
	if f.svc.ForUser(userID) {
		t.Fatalf("expected user override cleared")
	}
}

func TestRemoveRoleNow(t *testing.T) {
	f := newOverridesFixture(t)
	cookie := f.ownerCookie(t)
	if rec := f.do(t, http.MethodPost, "/remove_role_now/"+userID, cookie); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
