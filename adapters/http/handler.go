// Package http exposes the billing engine over a JSON HTTP API.
package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/utilibill/adapters/metrics"
	"github.com/artpar/utilibill/app"
	"github.com/artpar/utilibill/ports"
)

// VersionResponse is the version endpoint payload.
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
	Service string `json:"service" example:"utilibill"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Handler wires the application services to the HTTP surface.
type Handler struct {
	registry *app.RegistryService
	billing  *app.BillingService
	oracle   *app.OracleService
	hasher   ports.Hasher
	logger   zerolog.Logger
	metrics  *metrics.Collector

	// adminTokenHash is the bcrypt hash the Authorization bearer token is
	// compared against. Empty hash disables every mutating endpoint.
	adminTokenHash []byte
	// adminAddr is passed as the caller identity on admin-gated service
	// operations once the bearer token checks out.
	adminAddr   string
	version     string
	metricsPath string
}

// Deps contains dependencies for the HTTP handler.
type Deps struct {
	Registry *app.RegistryService
	Billing  *app.BillingService
	Oracle   *app.OracleService
	Hasher   ports.Hasher
	Logger   zerolog.Logger
	Metrics  *metrics.Collector

	AdminTokenHash string
	AdminAddress   string
	Version        string
	MetricsPath    string
}

// NewHandler creates the HTTP handler.
func NewHandler(deps Deps) *Handler {
	path := deps.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	return &Handler{
		registry:       deps.Registry,
		billing:        deps.Billing,
		oracle:         deps.Oracle,
		hasher:         deps.Hasher,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		adminTokenHash: []byte(deps.AdminTokenHash),
		adminAddr:      deps.AdminAddress,
		version:        deps.Version,
		metricsPath:    path,
	}
}

// Router builds the chi router for the whole API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.measure)
	}

	r.Get("/health", h.Health)
	r.Get("/version", h.Version)
	if h.metrics != nil {
		r.Handle(h.metricsPath, promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// Reads are open.
		r.Get("/providers", h.ListProviders)
		r.Get("/providers/{id}", h.GetProvider)
		r.Get("/tariffs/{id}", h.GetTariff)
		r.Get("/tariffs/{id}/versions", h.ListTariffVersions)
		r.Get("/meters/{id}", h.GetMeter)
		r.Get("/meters/{id}/total-paid", h.GetTotalPaid)
		r.Get("/meters/{id}/bills/{timestamp}", h.GetBillingDetails)
		r.Get("/fees/{id}", h.GetFee)
		r.Get("/feeds/{id}", h.GetFeed)
		r.Get("/rates/{id}", h.GetRate)
		r.Get("/oracle/config", h.GetOracleConfig)
		r.Get("/oracle/reliability", h.GetReliability)
		r.Get("/oracle/cost", h.GetCostStats)

		// Mutations require the admin bearer token.
		r.Group(func(r chi.Router) {
			r.Use(h.requireToken)

			r.Post("/providers", h.RegisterProvider)
			r.Put("/providers/{id}/status", h.UpdateProviderStatus)
			r.Post("/tariffs", h.AddTariff)
			r.Post("/tariffs/{id}/upgrade", h.UpgradeTariff)
			r.Post("/meters", h.RegisterMeter)
			r.Post("/meters/{id}/readings", h.RecordReading)
			r.Post("/fees", h.AddFee)
			r.Post("/feeds", h.AddFeed)
			r.Put("/feeds/{id}", h.UpdateFeed)
			r.Post("/rates", h.AddRate)
			r.Put("/rates/{id}", h.UpdateRate)
			r.Put("/oracle/config", h.UpdateOracleConfig)
			r.Post("/payments", h.PayBill)
		})
	})

	return r
}

// requireToken authenticates mutating requests with a bearer token
// checked against the configured bcrypt hash.
func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.adminTokenHash) == 0 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Admin token not configured")
			return
		}
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token == auth {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Bearer token required")
			return
		}
		if !h.hasher.Compare(h.adminTokenHash, token) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// measure records request counts and latency per method/route/status.
func (h *Handler) measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Route pattern, not raw path: keeps metric cardinality bounded.
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(ww.Status())
		h.metrics.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		h.metrics.RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Version reports the running build.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: h.version, Service: "utilibill"})
}
