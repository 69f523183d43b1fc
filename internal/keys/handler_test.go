package keys

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"verifier/internal/admin"
	"verifier/internal/config"
	"verifier/internal/discord"
	"verifier/internal/overrides"
	"verifier/internal/session"
	"verifier/internal/store"
)

const ownerID = "999999999999999999"

type keysFixture struct {
	mux      *http.ServeMux
	mock     *discord.MockAPI
	storage  *Storage
	sessions *session.Storage
	service  *overrides.Service
}

func newKeysFixture(t *testing.T) *keysFixture {
	t.Helper()
	st := store.NewInMemoryStore()
	sessions := session.NewStorage(st)
	cookies := session.NewCookies(config.SessionConfig{CookieName: "verifier_session"})
	svc, err := overrides.NewService(context.Background(), st)
	if err != nil {
		t.Fatalf("failed to create override service: %v", err)
	}
	mock := discord.NewMock()
	storage := NewStorage(st)

	mux := http.NewServeMux()
	NewHandler(storage, mock, svc, sessions, cookies).Register(mux, admin.New(ownerID, sessions, cookies))
	return &keysFixture{mux: mux, mock: mock, storage: storage, sessions: sessions, service: svc}
}

func (f *keysFixture) login(t *testing.T, did string) *http.Cookie {
	t.Helper()
	ctx := context.Background()
	sess, err := f.sessions.Create(ctx)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	sess.User = &session.User{ID: did, Username: "tester"}
	if err := f.sessions.Save(ctx, sess); err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
	return &http.Cookie{Name: "verifier_session", Value: sess.ID}
}

func (f *keysFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestGenerateRequiresLogin(t *testing.T) {
	f := newKeysFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/generate_key", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGenerateIssuesKeyForMemberWithRole(t *testing.T) {
	f := newKeysFixture(t)
	cookie := f.login(t, f.mock.User.ID)

	req := httptest.NewRequest(http.MethodPost, "/generate_key", nil)
	req.AddCookie(cookie)
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	key, _ := body["key"].(string)
	if !strings.HasPrefix(key, "GMD-"+f.mock.User.ID+"-") {
		t.Fatalf("unexpected key in response: %q", key)
	}

	req = httptest.NewRequest(http.MethodPost, "/generate_key", nil)
	req.AddCookie(cookie)
	rec = f.do(req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while key active, got %d", rec.Code)
	}
}

func TestGenerateRejectsNonMember(t *testing.T) {
	f := newKeysFixture(t)
	cookie := f.login(t, "123456789012345678")

	req := httptest.NewRequest(http.MethodPost, "/generate_key", nil)
	req.AddCookie(cookie)
	rec := f.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", rec.Code)
	}
}

func TestValidateConsumesKeyOnce(t *testing.T) {
	f := newKeysFixture(t)
	did := f.mock.User.ID
	key, err := f.storage.Issue(context.Background(), did)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	url := "/validate_key/" + did + "/" + key.Value
	rec := f.do(httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["valid"] != true {
		t.Fatalf("expected valid=true, got %v", body)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, url, nil))
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 for used key, got %d", rec.Code)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	f := newKeysFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/validate_key/notanumber/GMD-notanumber-AA", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad ID, got %d", rec.Code)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/validate_key/"+f.mock.User.ID+"/garbage", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed key, got %d", rec.Code)
	}
}

func TestValidateRejectsNonMember(t *testing.T) {
	f := newKeysFixture(t)
	did := "123456789012345678"
	rec := f.do(httptest.NewRequest(http.MethodGet, "/validate_key/"+did+"/GMD-"+did+"-AA", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-member, got %d", rec.Code)
	}
}

func TestValidateRejectsBannedUser(t *testing.T) {
	f := newKeysFixture(t)
	did := f.mock.User.ID
	f.mock.Banned = map[string]bool{did: true}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/validate_key/"+did+"/GMD-"+did+"-AA", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for banned user, got %d", rec.Code)
	}
}

func TestValidateHonorsUserOverride(t *testing.T) {
	f := newKeysFixture(t)
	did := f.mock.User.ID
	f.mock.MemberRoles = []string{} // member no longer carries the checked role
	f.service.SetUser(context.Background(), did, true, ownerID)

	key, err := f.storage.Issue(context.Background(), did)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	rec := f.do(httptest.NewRequest(http.MethodGet, "/validate_key/"+did+"/"+key.Value, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected override to admit key, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBurnRequiresOwner(t *testing.T) {
	f := newKeysFixture(t)
	did := f.mock.User.ID
	if _, err := f.storage.Issue(context.Background(), did); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	payload := strings.NewReader(`{"discord_id":"` + did + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/keys/burn", payload)
	req.AddCookie(f.login(t, did))
	rec := f.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", rec.Code)
	}

	payload = strings.NewReader(`{"discord_id":"` + did + `"}`)
	req = httptest.NewRequest(http.MethodPost, "/keys/burn", payload)
	req.AddCookie(f.login(t, ownerID))
	rec = f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner burn, got %d: %s", rec.Code, rec.Body.String())
	}

	key, err := f.storage.Get(context.Background(), did)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !key.Revoked {
		t.Fatalf("expected key revoked after burn")
	}
}

func TestListReturnsOwnKey(t *testing.T) {
	f := newKeysFixture(t)
	did := f.mock.User.ID
	if _, err := f.storage.Issue(context.Background(), did); err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/keys", nil)
	req.AddCookie(f.login(t, did))
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	records, _ := body["keys"].([]any)
	if len(records) != 1 {
		t.Fatalf("expected one key record, got %v", body)
	}
}

func TestAdminListRequiresOwner(t *testing.T) {
	f := newKeysFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/admin/keys", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without session, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/keys", nil)
	req.AddCookie(f.login(t, ownerID))
	rec = f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", rec.Code)
	}
}
