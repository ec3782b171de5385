package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/brindes-backend/api/controllers"
	inventorycontrollers "github.com/angelmondragon/brindes-backend/api/controllers/inventory"
	requestcontrollers "github.com/angelmondragon/brindes-backend/api/controllers/requests"
	"github.com/angelmondragon/brindes-backend/api/middleware"
	"github.com/angelmondragon/brindes-backend/internal/inventory"
	"github.com/angelmondragon/brindes-backend/internal/requests"
	"github.com/angelmondragon/brindes-backend/pkg/auth"
	"github.com/angelmondragon/brindes-backend/pkg/config"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
	"github.com/angelmondragon/brindes-backend/pkg/metrics"
	"github.com/angelmondragon/brindes-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	requestsService requests.Service,
	requestsQuery requests.Query,
	inventoryService inventory.Service,
) http.Handler {
	var httpMetrics *metrics.HTTPMetrics
	if registry != nil {
		httpMetrics = metrics.NewHTTPMetrics(registry)
	}

	verifier, err := auth.NewVerifier(cfg.JWT)
	if err != nil && logg != nil {
		logg.Error(context.Background(), "router.jwt_verifier_unavailable", err)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.AccessLog(logg, httpMetrics),
		middleware.Recoverer(logg, httpMetrics),
		middleware.CORS(cfg.App),
	)

	readiness := map[string]controllers.Pinger{"db": dbP}
	if redisClient != nil {
		readiness["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(verifier, logg))
		if redisClient != nil {
			r.Use(middleware.Idempotency(redisClient, cfg.Idempotency.TTL, logg))
		}

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", requestcontrollers.List(requestsQuery, logg))
			r.Post("/", requestcontrollers.Submit(requestsService, logg))

			r.Route("/{requestId}", func(r chi.Router) {
				r.Get("/", requestcontrollers.Detail(requestsQuery, logg))
				r.Get("/approvals", requestcontrollers.Approvals(requestsQuery, logg))
				r.Post("/cancel", requestcontrollers.Cancel(requestsService, logg))

				// tier checks need the request total, so the service decides
				r.Post("/approve", requestcontrollers.Approve(requestsService, logg))
				r.Post("/reject", requestcontrollers.Reject(requestsService, logg))
				r.With(middleware.RequireCapability(middleware.CapabilityDeliver, logg)).
					Post("/delivery", requestcontrollers.Delivery(requestsService, logg))
			})
		})

		r.Route("/inventory", func(r chi.Router) {
			r.With(middleware.RequireCapability(middleware.CapabilityManageCatalog, logg)).
				Get("/below-minimum", inventorycontrollers.BelowMinimum(inventoryService, logg))
			r.Get("/{itemId}/movements", inventorycontrollers.ListMovements(inventoryService, logg))
			r.With(middleware.RequireCapability(middleware.CapabilityManageCatalog, logg)).
				Post("/{itemId}/movements", inventorycontrollers.CreateMovement(inventoryService, logg))
		})
	})

	return r
}
