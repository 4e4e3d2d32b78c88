package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter wires the handlers to their routes behind CORS
func NewRouter(h *Handlers) http.Handler {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	// API routes
	apiRouter := router.PathPrefix("/api").Subrouter()

	// Verifications
	apiRouter.HandleFunc("/verifications", h.ListVerifications).Methods("GET")
	apiRouter.HandleFunc("/verifications", h.CreateVerification).Methods("POST")
	apiRouter.HandleFunc("/verifications/{id}", h.GetVerification).Methods("GET")
	apiRouter.HandleFunc("/verifications/{id}/cancel", h.CancelVerification).Methods("POST")

	// WebSocket for real-time updates
	apiRouter.HandleFunc("/verifications/{id}/stream", h.StreamVerification).Methods("GET")

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(router)
}
