package main

import (
	"context"
	"net/http"
	"strings"

	"gitea.kood.tech/petrkubec/purpose-match/backend/auth"
	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

// UserIDKey is the key type for storing the user id in context
type UserIDKey string

const userIDKey UserIDKey = "userID"

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func summarize(u store.User) userSummary {
	return userSummary{ID: u.ID, Username: u.Username}
}

// POST /api/register
func registerHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if !decodeJSON(w, r, &req) {
			return
		}

		u, err := svc.Register(r.Context(), req.Username, req.Password)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}

		// Registering also logs the user in
		token, exp, err := svc.Tokens().Issue(u.ID)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":    matching.MsgRegistered,
			"token":      token,
			"expires_at": exp,
			"user":       summarize(u),
		})
	}
}

// POST /api/login
func loginHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if !decodeJSON(w, r, &req) {
			return
		}

		u, err := svc.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		token, exp, err := svc.Tokens().Issue(u.ID)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    matching.MsgLoggedIn,
			"token":      token,
			"expires_at": exp,
			"user":       summarize(u),
		})
	}
}

// tokenFromRequest reads the bearer token, falling back to the token query
// parameter because browsers cannot set headers on websocket upgrades.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func authenticate(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized.")
				return
			}
			userID, err := tokens.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token.")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(logging.WithFields(ctx, "user_id", userID)))
		})
	}
}

// currentUser returns the id set by authenticate.
func currentUser(r *http.Request) int64 {
	return userFromContext(r.Context())
}

func userFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}
