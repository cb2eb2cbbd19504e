/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Access log:  zerolog/hlog, one line per request with request id
  2. Recoverer:   Panic recovery (500 instead of crash)
  3. Secure:      Security headers (unrolled/secure)
  4. CORS:        Cross-origin requests for frontends
  5. Rate limit:  Per-IP limit on mutating routes only (httprate)

ROUTE GROUPS:
  /api/stock/*      Stock operations and queries
  /api/bom/*        BOM edges
  /api/items, /api/locations, /api/suppliers, /api/customers
  /api/scenarios/*  Demo scenarios
  /healthz          Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"github.com/warp/stock-engine/logging"
)

// RouterConfig holds the HTTP concerns that vary by deployment.
type RouterConfig struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
	Development        bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		IsDevelopment:      cfg.Development,
	})

	// Middleware
	r.Use(logging.Middleware(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(secureMiddleware.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	limit := cfg.RateLimitPerMinute
	if limit <= 0 {
		limit = 120
	}
	writeLimiter := httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Stock routes
		r.Route("/stock", func(r chi.Router) {
			r.Get("/levels", h.GetStockLevels)
			r.Get("/movements", h.GetStockMovements)

			r.With(writeLimiter).Post("/receive", h.ReceiveStock)
			r.With(writeLimiter).Post("/issue", h.IssueStock)
			r.With(writeLimiter).Post("/adjust", h.AdjustStock)
			r.With(writeLimiter).Post("/transfer", h.TransferStock)
			r.With(writeLimiter).Post("/produce", h.ProduceItem)
		})

		// BOM routes
		r.Route("/bom", func(r chi.Router) {
			r.Get("/", h.ListBOMEdges)
			r.With(writeLimiter).Post("/", h.CreateBOMEdge)
			r.Get("/{id}", h.GetBOMEdge)
			r.With(writeLimiter).Patch("/{id}", h.UpdateBOMEdge)
			r.With(writeLimiter).Delete("/{id}", h.DeleteBOMEdge)
		})

		// Master data routes
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.With(writeLimiter).Post("/", h.CreateItem)
		})
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", h.ListLocations)
			r.With(writeLimiter).Post("/", h.CreateLocation)
		})
		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", h.ListSuppliers)
			r.With(writeLimiter).Post("/", h.CreateSupplier)
		})
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.With(writeLimiter).Post("/", h.CreateCustomer)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.With(writeLimiter).Post("/load", h.LoadScenario)
			r.With(writeLimiter).Post("/reset", h.ResetDatabase)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found", nil)
	})

	return r
}
