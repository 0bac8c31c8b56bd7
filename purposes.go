package main

import (
	"net/http"
	"strconv"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
)

const hasMoreHeader = "X-Has-More"

type swipeRequest struct {
	UserID    int64 `json:"userId"`
	PurposeID int64 `json:"purposeId"`
}

// POST /api/purpose/create
func createPurposeHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID      int64  `json:"userId"`
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		me := currentUser(r)
		if !decodeJSON(w, r, &req) || !actingAs(w, me, req.UserID) {
			return
		}

		p, err := svc.CreatePurpose(r.Context(), me, req.Title, req.Description)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"message": matching.MsgPurposeCreated, "purpose": p})
	}
}

// GET /api/purposes?limit=50
//
// The body stays a bare array; X-Has-More tells clients whether unseen
// purposes remain past the returned page.
func feedHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		claimed, ok := queryID(w, r, "userId")
		if !ok || !actingAs(w, me, claimed) {
			return
		}

		limit := matching.MaxFeedPage
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		page, err := svc.FeedPage(r.Context(), me, limit)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		w.Header().Set(hasMoreHeader, strconv.FormatBool(page.HasMore))
		writeJSON(w, http.StatusOK, page.Purposes)
	}
}

// POST /api/purpose/swipe-right and /api/purpose/swipe-left
func swipeHandler(svc *matching.Service, log logging.Logger, direction string) http.HandlerFunc {
	swipe := svc.SwipeRight
	if direction == matching.DirectionLeft {
		swipe = svc.SwipeLeft
	}
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		var req swipeRequest
		if !decodeJSON(w, r, &req) || !actingAs(w, me, req.UserID) {
			return
		}

		res, err := swipe(r.Context(), me, req.PurposeID)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		writeMessage(w, status, res.Message)
	}
}
