package v1

import (
	"net/http"

	"mindloom-backend/infrastructure/config"
	"mindloom-backend/interfaces/http/rest/handlers"
	"mindloom-backend/interfaces/http/rest/middleware"

	"github.com/gorilla/mux"
)

// NewRouter creates the v1 API router. The first extension release only
// captured and listed fragments; those two routes stay alive until its
// auto-update window closes. Everything map-related is v2 only.
func NewRouter(fragmentHandler *handlers.FragmentHandler, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.Use(versionHeaders)
	v1.Use(mux.MiddlewareFunc(middleware.Authenticate(cfg)))

	// Fragment endpoints
	v1.HandleFunc("/fragments", fragmentHandler.CaptureFragment).Methods("POST")
	v1.HandleFunc("/fragments", fragmentHandler.ListFragments).Methods("GET")

	// Health check
	v1.HandleFunc("/health", healthCheck).Methods("GET")

	return router
}

// versionHeaders marks every v1 response as deprecated
func versionHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-API-Version", "v1")
		w.Header().Set("X-API-Deprecated", "true")
		next.ServeHTTP(w, r)
	})
}

// healthCheck provides a health check endpoint
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","version":"v1"}`))
}
