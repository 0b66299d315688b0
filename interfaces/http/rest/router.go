package rest

import (
	"net/http"
	"strings"

	"mindloom-backend/application/commands"
	"mindloom-backend/application/commands/bus"
	commands_handlers "mindloom-backend/application/commands/handlers"
	querybus "mindloom-backend/application/queries/bus"
	"mindloom-backend/infrastructure/config"
	"mindloom-backend/interfaces/http/rest/handlers"
	"mindloom-backend/interfaces/http/rest/middleware"
	"mindloom-backend/interfaces/http/rest/v1"
	"mindloom-backend/pkg/auth"
	pkgerrors "mindloom-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	cfg               *config.Config
	commandBus        *bus.CommandBus
	queryBus          *querybus.QueryBus
	captureHandler    *commands.CaptureFragmentHandler
	bulkDeleteHandler *commands_handlers.BulkDeleteFragmentsHandler
	rateLimiter       *auth.DistributedRateLimiter
	logger            *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	captureHandler *commands.CaptureFragmentHandler,
	bulkDeleteHandler *commands_handlers.BulkDeleteFragmentsHandler,
	rateLimiter *auth.DistributedRateLimiter,
	logger *zap.Logger,
) *Router {
	return &Router{
		cfg:               cfg,
		commandBus:        commandBus,
		queryBus:          queryBus,
		captureHandler:    captureHandler,
		bulkDeleteHandler: bulkDeleteHandler,
		rateLimiter:       rateLimiter,
		logger:            logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(versionMiddleware)

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	errorHandler := pkgerrors.NewErrorHandler(rt.logger, rt.cfg.IsDevelopment())
	fragmentHandler := handlers.NewFragmentHandler(
		rt.captureHandler,
		rt.bulkDeleteHandler,
		rt.commandBus,
		rt.queryBus,
		errorHandler,
		rt.logger,
	)

	// API v1 routes (legacy extension builds: capture and list only)
	router.Mount("/api/v1", v1.NewRouter(fragmentHandler, rt.cfg))

	// API v2 routes (current)
	router.Route("/api/v2", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.cfg))

		// Fragment endpoints
		r.Route("/fragments", func(r chi.Router) {
			r.Post("/", fragmentHandler.CaptureFragment)
			r.Get("/", fragmentHandler.ListFragments)
			r.Delete("/{fragmentID}", fragmentHandler.DeleteFragment)
			r.Post("/bulk-delete", fragmentHandler.BulkDeleteFragments)
		})

		// Mind map endpoints
		r.Route("/maps", func(r chi.Router) {
			mapHandler := handlers.NewMindMapHandler(rt.commandBus, rt.queryBus, rt.rateLimiter, errorHandler, rt.logger)
			r.Get("/", mapHandler.GetMindMap)
			r.Post("/regenerate", mapHandler.RegenerateMap)
			r.Get("/revisions", mapHandler.GetRevisions)
		})

		// Keyword group endpoints
		groupHandler := handlers.NewGroupHandler(rt.queryBus, errorHandler, rt.logger)
		r.Get("/groups", groupHandler.GetGroups)

		// Generation model catalog
		modelHandler := handlers.NewModelHandler(rt.queryBus, errorHandler, rt.logger)
		r.Get("/models", modelHandler.ListModels)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// versionMiddleware adds API version headers to all responses
func versionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version := "v2"
		if strings.Contains(r.URL.Path, "/api/v1") {
			version = "v1"
		}

		w.Header().Set("X-API-Version", version)
		w.Header().Set("X-API-Latest", "v2")

		if version == "v1" {
			w.Header().Set("X-API-Deprecated", "true")
			w.Header().Set("X-API-Sunset-Date", "2026-06-01")
		} else {
			w.Header().Set("X-API-Deprecated", "false")
		}

		next.ServeHTTP(w, r)
	})
}
