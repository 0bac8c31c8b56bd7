package main

import (
	"net/http"

	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
)

// loadersMiddleware injects fresh dataloaders into each request context so
// lookups made while serving one request share a batch and a cache.
func loadersMiddleware(svc *matching.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := matching.WithLoaders(r.Context(), svc.NewLoaders())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
