package main

import (
	"net/http"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
)

// GET /api/my-purposes/interests
func posterInterestsHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return listHandler(log, func(r *http.Request, me int64) (any, error) {
		return svc.ListInterestsForPoster(r.Context(), me)
	})
}

// GET /api/my-interests
func pendingMatchesHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return listHandler(log, func(r *http.Request, me int64) (any, error) {
		return svc.ListPendingForInterestedUser(r.Context(), me)
	})
}

// GET /api/accepted-matches
func mutualMatchesHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return listHandler(log, func(r *http.Request, me int64) (any, error) {
		return svc.ListMutualMatches(r.Context(), me)
	})
}

// listHandler serves a list owned by the caller. The legacy userId query
// parameter is accepted but must name the caller.
func listHandler(log logging.Logger, list func(r *http.Request, me int64) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		claimed, ok := queryID(w, r, "userId")
		if !ok || !actingAs(w, me, claimed) {
			return
		}
		out, err := list(r, me)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// POST /api/purpose/accept-interest
func acceptInterestHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PurposeID        int64 `json:"purposeId"`
			PosterID         int64 `json:"posterId"`
			InterestedUserID int64 `json:"interestedUserId"`
		}
		me := currentUser(r)
		if !decodeJSON(w, r, &req) || !actingAs(w, me, req.PosterID) {
			return
		}

		res, err := svc.AcceptInterest(r.Context(), req.PurposeID, me, req.InterestedUserID)
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

// POST /api/match/accept
func acceptMatchHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PurposeID        int64 `json:"purposeId"`
			InterestedUserID int64 `json:"interestedUserId"`
		}
		me := currentUser(r)
		if !decodeJSON(w, r, &req) || !actingAs(w, me, req.InterestedUserID) {
			return
		}

		if err := svc.AcceptMatch(r.Context(), req.PurposeID, me); err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}
		writeMessage(w, http.StatusOK, matching.MsgMatchAccepted)
	}
}
