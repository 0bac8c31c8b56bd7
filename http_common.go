package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
)

// --- Response helpers ---
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// writeServiceError maps a matching error to its status. Anything that is
// not one of the service's error kinds is a server error and gets logged.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log logging.Logger, err error) {
	msg := matching.Message(err)
	switch {
	case errors.Is(err, matching.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", orDefault(msg, "Invalid request."))
	case errors.Is(err, matching.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", orDefault(msg, "Unauthorized."))
	case errors.Is(err, matching.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", orDefault(msg, "Forbidden."))
	case errors.Is(err, matching.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", orDefault(msg, "Not found."))
	case errors.Is(err, matching.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", orDefault(msg, "Conflict."))
	default:
		log.Error(ctx, "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Server error.")
	}
}

func orDefault(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON.")
		return false
	}
	return true
}

// pathID parses the named mux variable as a positive id.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid "+name+".")
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive id from the query string. A missing
// parameter yields 0.
func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid "+name+".")
		return 0, false
	}
	return id, true
}

// actingAs rejects a request whose claimed actor id differs from the token
// subject. A zero claim means the client left it out.
func actingAs(w http.ResponseWriter, me, claimed int64) bool {
	if claimed != 0 && claimed != me {
		writeError(w, http.StatusForbidden, "forbidden", "You can only act as yourself.")
		return false
	}
	return true
}
