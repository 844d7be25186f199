package api

import (
	"net/http"
	"time"

	"ecoquote/internal/auth"
	"ecoquote/internal/metrics"
	"ecoquote/internal/model"
	"ecoquote/internal/service"
	"ecoquote/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Dependencies struct {
	Quotations *service.QuotationService
	Catalog    *service.CatalogService
	Staff      *service.StaffService
	JWT        *auth.JWTConfig
	Hub        *ws.Hub
	Log        *zap.Logger
}

// Handler is the root router: health, metrics and the API under /v1
func Handler(d Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// Timeout middleware - skip for WebSocket upgrades
	r.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, req)
				return
			}
			timeout.ServeHTTP(w, req)
		})
	})

	r.Mount("/v1", Routes(d))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func Routes(d Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger(d.Log))
	// Anonymous requests pass; a present but invalid bearer is rejected
	r.Use(d.JWT.Middleware)

	// Public endpoints
	r.Post("/staff/login", d.login)
	r.Post("/quotations", d.createQuotation)
	r.Get("/custom-quotations/verify-token", d.verifyToken)
	r.Post("/custom-quotations/response", d.submitResponse)
	r.Get("/permits", d.listPermits)
	r.Get("/agencies", d.listAgencies)

	// WebSocket endpoint authenticates itself, browsers cannot set headers
	r.Get("/ws", d.wsHandler)

	// Any staff member
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireStaff())

		r.Get("/staff/me", d.me)
		r.Get("/portal", d.portal)

		r.Get("/quotations", d.listQuotations)
		r.Get("/quotations/{id}", d.getQuotation)
		r.Post("/quotations/{id}/permit-requests", d.addPermitRequest)
		r.Delete("/quotations/{id}/permit-requests/{requestId}", d.removePermitRequest)
		r.Get("/quotations/{id}/events", d.quotationEvents)

		r.Post("/custom-quotations/{id}/send", d.sendQuotation)
		r.Get("/custom-quotations/{id}/pdf", d.quotationPDF)
	})

	// Admins and managers
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireStaff(model.RoleManager, model.RoleAdmin))

		r.Put("/quotations/{id}/amount", d.setAmount)
		r.Post("/custom-quotations/{id}/estimate", d.syncEstimate)

		r.Post("/agencies", d.createAgency)
		r.Post("/agencies/{id}/permit-types", d.createPermitType)
		r.Put("/permit-types/{id}", d.updatePermitType)
	})

	// Managers only
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireStaff(model.RoleManager))

		r.Get("/staff", d.listStaff)
		r.Post("/staff", d.createStaff)
	})

	return r
}
