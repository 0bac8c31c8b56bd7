package main

import (
	"net/http"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

type profileRequest struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
	ImageURL string `json:"profile_image_url"`
}

// POST /api/profile
func saveProfileHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		var req profileRequest
		if !decodeJSON(w, r, &req) || !actingAs(w, me, req.UserID) {
			return
		}

		p, err := svc.SaveProfile(r.Context(), store.Profile{UserID: me, Bio: req.Bio, ImageURL: req.ImageURL})
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": matching.MsgProfileSaved, "profile": p})
	}
}

// GET /api/profile/{userId}
func getProfileHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "userId")
		if !ok {
			return
		}
		view, err := svc.Profile(r.Context(), userID)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// PUT /api/profile/{userId}
func updateProfileHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "userId")
		if !ok || !actingAs(w, currentUser(r), userID) {
			return
		}
		var req profileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		view, err := svc.UpdateProfile(r.Context(), userID, matching.ProfileUpdate{
			Username: req.Username,
			Bio:      req.Bio,
			ImageURL: req.ImageURL,
		})
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": matching.MsgProfileSaved, "profile": view})
	}
}
