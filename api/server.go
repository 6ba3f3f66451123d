/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. hlog:       zerolog request logger with the request id attached
  3. Access log: method, path, status, size, latency
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests from the configured origins

ROUTE GROUPS:
  /healthz              Liveness and store reachability
  /api/accounts/*       Accounts, items, payments, invoices
  /api/items/*          Item voiding
  /api/claims/*         Insurance claim workflow
  /api/tariff           Price list
  /api/scenarios/*      Demo scenarios
  /api/admin/*          Consistency audit

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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// NewRouter creates a new router with all routes configured. An empty
// origins list falls back to the local frontend dev servers.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(hlog.NewHandler(h.Logger))
	r.Use(requestIDLogger)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.OpenAccount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetAccount)
				r.Post("/close", h.CloseAccount)
				r.Get("/invoice", h.GetInvoice)
				r.Get("/items", h.ListItems)
				r.Post("/items", h.AddItem)
				r.Post("/items/bill", h.BillItems)
				r.Get("/payments", h.ListPayments)
				r.Post("/payments", h.ApplyPayment)
				r.Get("/claims", h.ListAccountClaims)
			})
		})

		r.Post("/items/{id}/void", h.VoidItem)

		r.Route("/claims", func(r chi.Router) {
			r.Get("/", h.ListClaims)
			r.Post("/", h.FileClaim)
			r.Get("/{id}", h.GetClaim)
			r.Post("/{id}/submit", h.SubmitClaim)
			r.Post("/{id}/approve", h.ApproveClaim)
			r.Post("/{id}/reject", h.RejectClaim)
			r.Post("/{id}/mark-paid", h.MarkClaimPaid)
			r.Post("/{id}/settle", h.SettleClaim)
		})

		r.Get("/tariff", h.ListTariff)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/audit", h.TriggerAudit)
			r.Get("/audit/runs", h.ListAuditRuns)
		})
	})

	return r
}

// requestIDLogger adds chi's request id to the request logger and echoes
// it in the response.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}
