package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/backoffice-backend/api/controllers"
	reconcilecontrollers "github.com/angelmondragon/backoffice-backend/api/controllers/reconcile"
	"github.com/angelmondragon/backoffice-backend/api/middleware"
	"github.com/angelmondragon/backoffice-backend/internal/reconcile"
	"github.com/angelmondragon/backoffice-backend/pkg/config"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
	"github.com/angelmondragon/backoffice-backend/pkg/metrics"
)

// Deps carries everything the router wires into controllers. Pingers and
// Gatherer may be nil.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer

	Reconcile  reconcile.Service
	Exchange   reconcilecontrollers.ExchangeService
	Compliance reconcilecontrollers.ComplianceReporter
	Conflicts  reconcilecontrollers.ConflictLister
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, d.HTTPMetrics),
	)

	deps := map[string]controllers.Pinger{"db": d.DB}
	if d.Redis != nil {
		deps["redis"] = d.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.TenantContext(logg))

		r.Get("/catalog/search", reconcilecontrollers.SearchCatalog(d.Reconcile, logg))
		r.Get("/items/{itemId}/gl-suggestion", reconcilecontrollers.SuggestGLAccount(d.Reconcile, logg))
		r.Post("/packs/parse", reconcilecontrollers.ParsePack(logg))

		r.Route("/invoice-lines", func(r chi.Router) {
			r.Post("/resolve", reconcilecontrollers.ResolveLine(d.Reconcile, logg))
			r.Post("/{lineId}/resolve", reconcilecontrollers.ResolveStoredLine(d.Reconcile, logg))
			r.Post("/{lineId}/confirm", reconcilecontrollers.ConfirmMapping(d.Reconcile, logg))
			r.Post("/{lineId}/unmap", reconcilecontrollers.UnmapLine(d.Reconcile, logg))
		})
		r.Post("/vendors/{vendorId}/bulk-resolve", reconcilecontrollers.BulkResolve(d.Reconcile, logg))

		r.Get("/exports/unmapped-items", reconcilecontrollers.ExportUnmappedItems(d.Exchange, logg))
		r.Post("/imports/catalog", reconcilecontrollers.ImportCatalog(d.Exchange, logg))

		r.Get("/reports/gl-compliance", reconcilecontrollers.GLCompliance(d.Compliance, logg))
		r.Get("/alias-conflicts", reconcilecontrollers.AliasConflicts(d.Conflicts, logg))
	})

	return r
}
