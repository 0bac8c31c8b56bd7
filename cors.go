package main

import (
	"net/http"

	"github.com/rs/cors"
)

// The frontend runs on a different origin, so every route sits behind CORS.
func withCORS(allowed []string, next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{hasMoreHeader},
		AllowCredentials: true,
	}).Handler(next)
}
