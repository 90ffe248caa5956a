// Package api provides the web companion's HTTP surface: account linking,
// credential submission, and read-only bot inspection.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/discoursa/discoursa/internal/auth"
	"github.com/discoursa/discoursa/internal/db"
	"github.com/discoursa/discoursa/internal/secrets"
)

type API struct {
	store      *db.DB
	auth       *auth.Auth
	keeper     *secrets.Keeper
	adminToken string
	botHandle  string
	startedAt  time.Time
}

func New(store *db.DB, a *auth.Auth, keeper *secrets.Keeper, adminToken, botHandle string) *API {
	return &API{
		store:      store,
		auth:       a,
		keeper:     keeper,
		adminToken: adminToken,
		botHandle:  botHandle,
		startedAt:  time.Now(),
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/healthz", a.handleHealthz)
	r.Get("/api/bot/status", a.handleBotStatus)
	r.Get("/api/debates", a.handleListDebates)
	r.Get("/api/debates/{rootID}", a.handleGetDebate)
	r.Post("/api/user/link-token", a.handleLinkToken)
	r.Post("/api/user/config", a.handleUserConfig)

	return r
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, map[string]any{"ok": true})
}

// handleLinkToken mints the short-lived JWT the credential endpoint requires.
// Called by the web companion after it has verified platform ownership;
// guarded by the operator admin token.
func (a *API) handleLinkToken(w http.ResponseWriter, r *http.Request) {
	if a.adminToken == "" || r.Header.Get("X-Admin-Token") != a.adminToken {
		jsonError(w, "forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		Handle string `json:"handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		jsonError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	token, err := a.auth.GenerateLinkToken(req.UserID, req.Handle)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"token": token})
}

// handleUserConfig encrypts and stores the caller's LLM API key. The platform
// identity comes from the link token, never from the request body.
func (a *API) handleUserConfig(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		jsonError(w, "api_key is required", http.StatusBadRequest)
		return
	}

	encrypted, err := a.keeper.Encrypt(req.APIKey)
	if err != nil {
		log.Printf("api: encrypting credential: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := a.store.UpsertUser(claims.UserID, claims.Handle, encrypted, time.Now()); err != nil {
		log.Printf("api: storing credential: %v", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonResp(w, http.StatusOK, map[string]any{"status": "success"})
}

func (a *API) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	roots, err := a.store.CountRoots()
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	branches, err := a.store.CountBranches()
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	cursor, err := a.store.GetState(db.SinceIDKey)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonResp(w, http.StatusOK, map[string]any{
		"handle":     a.botHandle,
		"roots":      roots,
		"branches":   branches,
		"cursor":     cursor,
		"uptime_sec": int(time.Since(a.startedAt).Seconds()),
	})
}

func (a *API) handleListDebates(w http.ResponseWriter, r *http.Request) {
	roots, err := a.store.ListRoots(50)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"roots": roots})
}

func (a *API) handleGetDebate(w http.ResponseWriter, r *http.Request) {
	rootID := chi.URLParam(r, "rootID")
	root, err := a.store.GetRoot(rootID)
	if err != nil {
		jsonError(w, "debate not found", http.StatusNotFound)
		return
	}
	branches, err := a.store.BranchesByRoot(rootID)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	type branchSummary struct {
		ID           string    `json:"id"`
		ChallengerID string    `json:"challenger_id"`
		Turns        int       `json:"turns"`
		LastReplyID  string    `json:"last_reply_id"`
		CreatedAt    time.Time `json:"created_at"`
	}
	summaries := make([]branchSummary, 0, len(branches))
	for _, b := range branches {
		summaries = append(summaries, branchSummary{
			ID:           b.ID,
			ChallengerID: b.ChallengerID,
			Turns:        len(b.History),
			LastReplyID:  b.LastReplyID,
			CreatedAt:    b.CreatedAt,
		})
	}

	jsonResp(w, http.StatusOK, map[string]any{
		"root":     root,
		"branches": summaries,
	})
}

func jsonResp(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	jsonResp(w, status, map[string]string{"error": msg})
}
