package main

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"gitea.kood.tech/petrkubec/purpose-match/backend/graph"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
	"gitea.kood.tech/petrkubec/purpose-match/backend/realtime"
)

func (a *App) routes(base context.Context) http.Handler {
	svc, log := a.svc, a.log
	r := mux.NewRouter()

	// Health check endpoint for Docker
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"backend":       a.backendName,
			"open_channels": a.registry.Len(),
		})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)

	r.Handle("/ws", wsHandler(base, svc, realtime.NewUpgrader(a.cfg.Server.AllowedOrigins), log)).Methods(http.MethodGet)

	// Read-only GraphQL views share the REST auth and loaders
	var gql http.Handler = graph.NewHandler(svc, userFromContext, log)
	gql = loadersMiddleware(svc)(gql)
	gql = authenticate(svc.Tokens())(gql)
	r.Handle("/graphql", gql).Methods(http.MethodGet, http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", registerHandler(svc, log)).Methods(http.MethodPost)
	api.HandleFunc("/login", loginHandler(svc, log)).Methods(http.MethodPost)
	api.HandleFunc("/profile/{userId:[0-9]+}", getProfileHandler(svc, log)).Methods(http.MethodGet)

	// Everything below acts on behalf of the token's user
	me := api.NewRoute().Subrouter()
	me.Use(authenticate(svc.Tokens()), loadersMiddleware(svc))

	me.HandleFunc("/profile", saveProfileHandler(svc, log)).Methods(http.MethodPost)
	me.HandleFunc("/profile/image-upload-url", imageUploadURLHandler(a.images, log)).Methods(http.MethodPost)
	me.HandleFunc("/profile/{userId:[0-9]+}", updateProfileHandler(svc, log)).Methods(http.MethodPut)
	me.HandleFunc("/profile/{userId:[0-9]+}/image-url", imageReadURLHandler(svc, a.images, log)).Methods(http.MethodGet)

	me.HandleFunc("/purpose/create", createPurposeHandler(svc, log)).Methods(http.MethodPost)
	me.HandleFunc("/purposes", feedHandler(svc, log)).Methods(http.MethodGet)
	me.HandleFunc("/purpose/swipe-right", swipeHandler(svc, log, matching.DirectionRight)).Methods(http.MethodPost)
	me.HandleFunc("/purpose/swipe-left", swipeHandler(svc, log, matching.DirectionLeft)).Methods(http.MethodPost)

	me.HandleFunc("/my-purposes/interests", posterInterestsHandler(svc, log)).Methods(http.MethodGet)
	me.HandleFunc("/purpose/accept-interest", acceptInterestHandler(svc, log)).Methods(http.MethodPost)
	me.HandleFunc("/my-interests", pendingMatchesHandler(svc, log)).Methods(http.MethodGet)
	me.HandleFunc("/match/accept", acceptMatchHandler(svc, log)).Methods(http.MethodPost)
	me.HandleFunc("/accepted-matches", mutualMatchesHandler(svc, log)).Methods(http.MethodGet)

	me.HandleFunc("/chat/history/{peerId:[0-9]+}", chatHistoryHandler(svc, log)).Methods(http.MethodGet)
	me.HandleFunc("/chat/history", chatHistoryQueryHandler(svc, log)).Methods(http.MethodGet)

	return withCORS(a.cfg.Server.AllowedOrigins, r)
}
