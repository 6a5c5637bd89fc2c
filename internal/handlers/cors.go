package handlers

import (
	"net/http"

	"github.com/rs/cors"
)

// CorsSettings allows browser clients to call the bearer-authenticated routes.
// With no origins configured every origin is allowed.
func CorsSettings(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         600,
	})
}
