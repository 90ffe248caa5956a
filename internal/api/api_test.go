package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/discoursa/discoursa/internal/auth"
	"github.com/discoursa/discoursa/internal/db"
	"github.com/discoursa/discoursa/internal/secrets"
)

type apiFixture struct {
	store  *db.DB
	keeper *secrets.Keeper
	srv    *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	key, err := secrets.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	keeper, err := secrets.NewKeeper(key)
	if err != nil {
		t.Fatal(err)
	}

	a := New(store, auth.New("test-secret", 15), keeper, "admin-tok", "discoursa")
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return &apiFixture{store: store, keeper: keeper, srv: srv}
}

func (f *apiFixture) post(t *testing.T, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, decoded
}

func (f *apiFixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, decoded
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.get(t, "/api/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestCredentialLinkFlow(t *testing.T) {
	f := newAPIFixture(t)

	// Mint a link token as the web companion would.
	resp, body := f.post(t, "/api/user/link-token",
		`{"user_id": "alice", "handle": "alice_h"}`,
		map[string]string{"X-Admin-Token": "admin-tok"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("link-token status = %d: %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("no token in response")
	}

	// Submit the credential with that token.
	resp, body = f.post(t, "/api/user/config",
		`{"api_key": "sk-gemini-key"}`,
		map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config status = %d: %v", resp.StatusCode, body)
	}

	// The stored credential is sealed, not plaintext, and round-trips.
	user, err := f.store.GetUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if user == nil {
		t.Fatal("user not stored")
	}
	if user.Handle != "alice_h" {
		t.Errorf("handle = %q", user.Handle)
	}
	if user.EncryptedCredential == "sk-gemini-key" {
		t.Error("credential stored in plaintext")
	}
	plain, err := f.keeper.Decrypt(user.EncryptedCredential)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "sk-gemini-key" {
		t.Errorf("decrypted credential = %q", plain)
	}
}

func TestLinkTokenRequiresAdminToken(t *testing.T) {
	f := newAPIFixture(t)
	for name, headers := range map[string]map[string]string{
		"missing": nil,
		"wrong":   {"X-Admin-Token": "nope"},
	} {
		resp, _ := f.post(t, "/api/user/link-token", `{"user_id": "alice"}`, headers)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s admin token: status = %d, want 403", name, resp.StatusCode)
		}
	}
}

func TestLinkTokenValidatesBody(t *testing.T) {
	f := newAPIFixture(t)
	for name, body := range map[string]string{
		"empty user_id": `{"user_id": ""}`,
		"not json":      `nope`,
	} {
		resp, _ := f.post(t, "/api/user/link-token", body,
			map[string]string{"X-Admin-Token": "admin-tok"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}

func TestUserConfigRequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.post(t, "/api/user/config", `{"api_key": "sk"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp, _ = f.post(t, "/api/user/config", `{"api_key": "sk"}`,
		map[string]string{"Authorization": "Bearer garbage"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", resp.StatusCode)
	}
}

func TestUserConfigRequiresAPIKey(t *testing.T) {
	f := newAPIFixture(t)
	_, body := f.post(t, "/api/user/link-token",
		`{"user_id": "alice"}`,
		map[string]string{"X-Admin-Token": "admin-tok"})
	token := body["token"].(string)

	resp, _ := f.post(t, "/api/user/config", `{"api_key": ""}`,
		map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestBotStatusAndDebateInspection(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Now()

	if err := f.store.UpsertUser("alice", "alice_h", "sealed", now); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.EnsureRoot("p1", "cats are better than dogs", "op", now); err != nil {
		t.Fatal(err)
	}
	seed := []db.Turn{{Role: "user", Content: "u"}, {Role: "assistant", Content: "a"}}
	branch, err := f.store.CreateBranch("p1", "alice", "r1", seed, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetState(db.SinceIDKey, "m42"); err != nil {
		t.Fatal(err)
	}

	resp, status := f.get(t, "/api/bot/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint = %d", resp.StatusCode)
	}
	if status["handle"] != "discoursa" || status["cursor"] != "m42" {
		t.Errorf("status = %v", status)
	}
	if status["roots"].(float64) != 1 || status["branches"].(float64) != 1 {
		t.Errorf("counts = %v", status)
	}

	resp, list := f.get(t, "/api/debates")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list endpoint = %d", resp.StatusCode)
	}
	roots := list["roots"].([]any)
	if len(roots) != 1 {
		t.Fatalf("got %d roots", len(roots))
	}

	resp, detail := f.get(t, "/api/debates/p1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detail endpoint = %d", resp.StatusCode)
	}
	branches := detail["branches"].([]any)
	if len(branches) != 1 {
		t.Fatalf("got %d branches", len(branches))
	}
	summary := branches[0].(map[string]any)
	if summary["id"] != branch.ID || summary["turns"].(float64) != 2 {
		t.Errorf("summary = %v", summary)
	}

	resp, _ = f.get(t, "/api/debates/missing")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing debate = %d, want 404", resp.StatusCode)
	}
}
