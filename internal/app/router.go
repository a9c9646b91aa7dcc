package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	auth "github.com/urbix-hr/urbix/internal/auth"
	"github.com/urbix-hr/urbix/internal/employees"
	"github.com/urbix-hr/urbix/internal/expenses"
	"github.com/urbix-hr/urbix/internal/license"
	"github.com/urbix-hr/urbix/internal/observability"
	"github.com/urbix-hr/urbix/internal/payroll"
	"github.com/urbix-hr/urbix/internal/shared"
	"github.com/urbix-hr/urbix/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler     *auth.Handler
	LicenseHandler  *license.Handler
	LicenseGate     func(http.Handler) http.Handler
	PayrollHandler  *payroll.Handler
	ExpenseHandler  *expenses.Handler
	EmployeeHandler *employees.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Urbix defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.LicenseGate != nil {
		r.Use(params.LicenseGate)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.LicenseHandler != nil {
			r.Route("/license", params.LicenseHandler.MountRoutes)
		}
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.PayrollHandler != nil {
			r.Route("/payroll", params.PayrollHandler.MountRoutes)
		}
		if params.ExpenseHandler != nil {
			r.Route("/expenses", params.ExpenseHandler.MountRoutes)
		}
		if params.EmployeeHandler != nil {
			r.Route("/employees", params.EmployeeHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
